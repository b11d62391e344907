package gc

import (
	"reflect"

	"go.uber.org/mock/gomock"
)

// MockFrameSource is a hand-written mockgen-style mock of FrameSource, kept
// in this package's test files rather than generated into a separate mock
// package, since this package only needs the one mocked interface.
type MockFrameSource struct {
	ctrl     *gomock.Controller
	recorder *MockFrameSourceMockRecorder
}

// MockFrameSourceMockRecorder is the recorder half mockgen pairs with every
// mock type, giving EXPECT() calls method-shaped autocompletion.
type MockFrameSourceMockRecorder struct {
	mock *MockFrameSource
}

// NewMockFrameSource creates a mock bound to ctrl.
func NewMockFrameSource(ctrl *gomock.Controller) *MockFrameSource {
	m := &MockFrameSource{ctrl: ctrl}
	m.recorder = &MockFrameSourceMockRecorder{m}

	return m
}

// EXPECT returns the recorder used to set up call expectations.
func (m *MockFrameSource) EXPECT() *MockFrameSourceMockRecorder {
	return m.recorder
}

// ScanRange mocks the FrameSource.ScanRange method.
func (m *MockFrameSource) ScanRange() (uintptr, uintptr, bool) {
	m.ctrl.T.Helper()

	ret := m.ctrl.Call(m, "ScanRange")
	lo, _ := ret[0].(uintptr)
	hi, _ := ret[1].(uintptr)
	ok, _ := ret[2].(bool)

	return lo, hi, ok
}

// ScanRange registers an expectation for a ScanRange call.
func (mr *MockFrameSourceMockRecorder) ScanRange() *gomock.Call {
	mr.mock.ctrl.T.Helper()

	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ScanRange", reflect.TypeOf((*MockFrameSource)(nil).ScanRange))
}
