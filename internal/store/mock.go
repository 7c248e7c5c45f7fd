package store

import (
	"github.com/classchat/classchat/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockMessageRepository) SaveMessage(params SaveMessageParams) (types.Message, error) {
	args := m.Called(params)
	return args.Get(0).(types.Message), args.Error(1)
}

func (m *MockMessageRepository) RoomHistory(room string, limit int) ([]types.Message, error) {
	args := m.Called(room, limit)
	return args.Get(0).([]types.Message), args.Error(1)
}

func (m *MockMessageRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
