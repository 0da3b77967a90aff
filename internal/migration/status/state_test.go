package status

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/imamik/stagehand/internal/migration"
)

func TestCheckTransition(t *testing.T) {
	t.Parallel()

	extract := StageState(migration.StageExtract)
	install := StageState(migration.StageInstall)
	dataMigrate := StageState(migration.StageDataMigrate)

	tests := []struct {
		from, to State
		wantErr  error
	}{
		{StatePending, StateRunning, nil},
		{StatePending, StateFailed, nil},
		{StatePending, extract, ErrInvalidTransition},
		{StatePending, StateCompleted, ErrInvalidTransition},
		{StateRunning, StateRunning, nil},
		{StateRunning, extract, nil},
		{StateRunning, StateCompleted, ErrInvalidTransition},
		{StateRunning, StatePending, ErrInvalidTransition},
		{extract, extract, nil},
		{extract, install, nil},
		{extract, dataMigrate, nil},
		{install, extract, ErrInvalidTransition},
		{install, StateRunning, ErrInvalidTransition},
		{dataMigrate, StateCompleted, nil},
		{dataMigrate, StateFailed, nil},
		{StateCompleted, StateFailed, ErrTerminal},
		{StateFailed, StateRunning, ErrTerminal},
		{StateFailed, StateFailed, ErrTerminal},
		{StateRunning, State("stage:cleanup"), ErrInvalidTransition},
		{StateRunning, State("paused"), ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			t.Parallel()
			err := CheckTransition(tt.from, tt.to)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestStateHelpers(t *testing.T) {
	t.Parallel()

	s := StageState(migration.StageSchemaUpgrade)
	assert.Equal(t, State("stage:schema-upgrade"), s)
	name, ok := s.Stage()
	assert.True(t, ok)
	assert.Equal(t, migration.StageSchemaUpgrade, name)

	_, ok = StateRunning.Stage()
	assert.False(t, ok)

	assert.True(t, StateCompleted.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())
	assert.False(t, s.IsTerminal())
	assert.False(t, StatePending.IsTerminal())
}
