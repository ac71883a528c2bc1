package client

import (
	"strconv"
	"sync"
)

// MockState is an in-memory implementation of StateInterface for testing
type MockState struct {
	mu     sync.RWMutex
	config map[string]string

	setConfigErr error
}

// NewMockState creates a new mock state
func NewMockState() *MockState {
	return &MockState{
		config: make(map[string]string),
	}
}

func (s *MockState) GetConfig(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config[key], nil
}

func (s *MockState) SetConfig(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setConfigErr != nil {
		return s.setConfigErr
	}
	s.config[key] = value
	return nil
}

func (s *MockState) GetLastUsername() string {
	v, _ := s.GetConfig("last_username")
	return v
}

func (s *MockState) SetLastUsername(username string) error {
	return s.SetConfig("last_username", username)
}

func (s *MockState) NotificationsEnabled() bool {
	v, _ := s.GetConfig("notifications")
	return v != "false"
}

func (s *MockState) SetNotificationsEnabled(enabled bool) error {
	return s.SetConfig("notifications", strconv.FormatBool(enabled))
}

func (s *MockState) Close() error {
	return nil
}

// SetSetConfigError makes subsequent writes fail
func (s *MockState) SetSetConfigError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setConfigErr = err
}
