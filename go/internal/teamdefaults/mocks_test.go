package teamdefaults

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/JacquesBronk/FreeScrumPoker/go/internal/models"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Load(ctx context.Context) (map[string]models.TeamDefaults, error) {
	args := m.Called(ctx)
	teams, _ := args.Get(0).(map[string]models.TeamDefaults)
	return teams, args.Error(1)
}

func (m *MockStore) Save(ctx context.Context, teams map[string]models.TeamDefaults) error {
	args := m.Called(ctx, teams)
	return args.Error(0)
}
