// Package mocks provides test doubles for the page channel.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	browser "github.com/sells-group/maps-harvest/internal/browser"
)

// MockChannel is a mock type for the Channel interface.
type MockChannel struct {
	mock.Mock
}

// Send provides a mock function with given fields: ctx, req
func (_m *MockChannel) Send(ctx context.Context, req browser.Request) (browser.Response, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for Send")
	}

	var r0 browser.Response
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, browser.Request) (browser.Response, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, browser.Request) browser.Response); ok {
		r0 = rf(ctx, req)
	} else {
		r0 = ret.Get(0).(browser.Response)
	}

	if rf, ok := ret.Get(1).(func(context.Context, browser.Request) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockChannel creates a new instance of MockChannel. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockChannel(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockChannel {
	m := &MockChannel{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
