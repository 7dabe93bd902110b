package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JacquesBronk/FreeScrumPoker/go/internal/models"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  InboundMessage
	}{
		{
			name:  "join with team",
			frame: `{"type":"join-room","data":{"roomId":"abc","userName":"alice","userRole":"observer","teamKey":"platform"}}`,
			want:  &JoinRoom{Target: Target{RoomID: "abc"}, UserName: "alice", UserRole: "observer", TeamKey: "platform"},
		},
		{
			name:  "vote",
			frame: `{"type":"cast-vote","data":{"roomId":"abc","card":"13","confidence":"low"}}`,
			want:  &CastVote{Target: Target{RoomID: "abc"}, Card: "13", Confidence: models.ConfidenceLow},
		},
		{
			name:  "reveal without data uses envelope room",
			frame: `{"type":"toggle-reveal-cards","roomId":"abc"}`,
			want:  &ToggleRevealCards{Target: Target{RoomID: "abc"}},
		},
		{
			name:  "card set with custom cards",
			frame: `{"type":"change-card-set","data":{"roomId":"abc","cardSet":"custom","customCards":["S","M","L"]}}`,
			want:  &ChangeCardSet{Target: Target{RoomID: "abc"}, CardSet: "custom", CustomCards: []string{"S", "M", "L"}},
		},
		{
			name:  "complete story",
			frame: `{"type":"complete-story","data":{"roomId":"abc","estimate":"8","consensus":false}}`,
			want:  &CompleteStory{Target: Target{RoomID: "abc"}, Estimate: "8"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got, err := Decode([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_StoryUpdateKeepsOmittedFieldsNil(t *testing.T) {
	typ, msg, err := Decode([]byte(`{"type":"update-story","data":{"roomId":"abc","updates":{"description":"As a user..."}}}`))
	require.NoError(t, err)
	assert.Equal(t, EventUpdateStory, typ)

	upd, ok := msg.(*UpdateStory)
	require.True(t, ok)
	require.NotNil(t, upd.Updates.Description)
	assert.Equal(t, "As a user...", *upd.Updates.Description)
	assert.Nil(t, upd.Updates.Title)
}

func TestDecode_Errors(t *testing.T) {
	_, _, err := Decode([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedMessage)

	typ, _, err := Decode([]byte(`{"type":"kick-player"}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)
	assert.Equal(t, EventType("kick-player"), typ)

	_, _, err = Decode([]byte(`{"type":"cast-vote","data":[1,2]}`))
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestEncode(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	frame, err := Encode("ABC", TimerUpdated{Timer: models.Timer{Active: true, Remaining: 90, Duration: 300}}, now)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, EventTimerUpdated, env.Type)
	assert.Equal(t, "ABC", env.RoomID)
	assert.True(t, now.Equal(env.Timestamp))
	assert.JSONEq(t, `{"timer":{"active":true,"remaining":90,"duration":300}}`, string(env.Data))
}
