package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/maps-harvest/internal/model"
	"github.com/sells-group/maps-harvest/internal/store"
)

func sampleRecords() []model.BusinessRecord {
	return []model.BusinessRecord{
		{
			Name:        "Joe's Pizza",
			Category:    "Pizza restaurant",
			Address:     "7 Carmine St, New York, NY 10014",
			Phone:       "2123661182",
			Website:     "https://joespizzanyc.com/",
			Rating:      "4.5",
			ReviewCount: "1234",
			Hours:       "Monday 10AM-2AM; Tuesday 10AM-2AM",
			Emails:      "info@joespizzanyc.com, events@joespizzanyc.com",
			Facebook:    "https://facebook.com/joespizza",
		},
		{
			Name:    "Cafe \"Quote\", Inc",
			Address: "1 Main St",
			Hours:   "Open 24 hours",
		},
	}
}

func exported(r model.BusinessRecord) model.BusinessRecord {
	return model.BusinessRecord{
		Name: r.Name, Category: r.Category, Address: r.Address, Phone: r.Phone,
		Website: r.Website, Rating: r.Rating, ReviewCount: r.ReviewCount, Hours: r.Hours,
		Emails: r.Emails, WebPhones: r.WebPhones, Facebook: r.Facebook, Instagram: r.Instagram,
		LinkedIn: r.LinkedIn, Twitter: r.Twitter, WhatsApp: r.WhatsApp, Telegram: r.Telegram,
	}
}

func TestWriteTSV_Header(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTSV(&buf, nil, DefaultColumns()))

	first := strings.SplitN(buf.String(), "\n", 2)[0]
	assert.True(t, strings.HasPrefix(first, "Name\tCategory\tAddress\tPhone\tWebsite\tRating\tReviews\tHours\t"))
	assert.Contains(t, first, "Emails\tWeb Phones\tFacebook\tInstagram\tLinkedIn\tTwitter\tWhatsApp\tTelegram")
}

func TestTSV_RoundTrip(t *testing.T) {
	recs := sampleRecords()
	recs[0].PlaceID = "ChIJabc"
	recs[0].ID = "id-1"

	var buf bytes.Buffer
	require.NoError(t, WriteTSV(&buf, recs, DefaultColumns()))

	got, err := ParseTSV(&buf)
	require.NoError(t, err)
	require.Len(t, got, len(recs))
	for i := range recs {
		assert.Equal(t, exported(recs[i]), got[i])
	}
}

func TestTSV_SanitizesValues(t *testing.T) {
	recs := []model.BusinessRecord{{
		Name:    "Tab\tName",
		Address: "Line one\nLine two",
		Hours:   "Mon 9-5\nTue 9-5",
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteTSV(&buf, recs, DefaultColumns()))
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)

	got, err := ParseTSV(strings.NewReader(buf.String()))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Tab Name", got[0].Name)
	assert.Equal(t, "Line one Line two", got[0].Address)
	assert.Equal(t, "Mon 9-5; Tue 9-5", got[0].Hours)
}

func TestParseTSV_IgnoresUnknownHeaders(t *testing.T) {
	in := "Name\tNotes\tAddress\r\nAcme\tcall back\t1 Main St\r\n\r\n"
	got, err := ParseTSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Acme", got[0].Name)
	assert.Equal(t, "1 Main St", got[0].Address)
}

func TestParseTSV_Empty(t *testing.T) {
	got, err := ParseTSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWriteCSV_Quoting(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRecords(), DefaultColumns()))

	assert.Contains(t, buf.String(), `"Cafe ""Quote"", Inc"`)
	assert.Contains(t, buf.String(), `"7 Carmine St, New York, NY 10014"`)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Name", rows[0][0])
	assert.Equal(t, `Cafe "Quote", Inc`, rows[2][0])
	assert.Equal(t, "info@joespizzanyc.com, events@joespizzanyc.com", rows[1][8])
}

func TestXLSX_RoundTrip(t *testing.T) {
	recs := sampleRecords()

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, recs, DefaultColumns()))

	got, err := ParseXLSX(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, got, len(recs))
	for i := range recs {
		assert.Equal(t, exported(recs[i]), got[i])
	}
}

func TestParseXLSX_Invalid(t *testing.T) {
	_, err := ParseXLSX([]byte("not a workbook"))
	assert.Error(t, err)
}

func TestWrite_Dispatch(t *testing.T) {
	for _, f := range []Format{TSV, CSV, XLSX} {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, f, sampleRecords(), nil), f)
		assert.NotZero(t, buf.Len(), f)
	}
	assert.Error(t, Write(&bytes.Buffer{}, Format("pdf"), nil, nil))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" XLSX ")
	require.NoError(t, err)
	assert.Equal(t, XLSX, f)
	assert.Contains(t, f.ContentType(), "spreadsheetml")
	assert.Contains(t, TSV.ContentType(), "tab-separated")

	_, err = ParseFormat("pdf")
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	cols := Resolve([]string{"website", "NAME", "bogus", "name", "placeId"})
	keys := make([]string, len(cols))
	for i, c := range cols {
		keys[i] = c.Key
	}
	assert.Equal(t, []string{"website", "name", "placeId"}, keys)

	assert.Len(t, Resolve(nil), 16)
	assert.Len(t, Resolve([]string{"bogus"}), 16)
	assert.Len(t, ColumnKeys(), 18)
}

func TestColumnPrefs(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()

	cols, err := LoadColumns(ctx, kv)
	require.NoError(t, err)
	assert.Equal(t, "name", cols[0].Key)

	require.NoError(t, SaveColumnPrefs(ctx, kv, []string{"phone", "name"}))
	cols, err = LoadColumns(ctx, kv)
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "Phone", cols[0].Header)

	var buf bytes.Buffer
	require.NoError(t, WriteTSV(&buf, sampleRecords()[:1], cols))
	assert.Equal(t, "Phone\tName\n2123661182\tJoe's Pizza\n", buf.String())

	assert.Error(t, SaveColumnPrefs(ctx, kv, []string{"nope"}))
}
