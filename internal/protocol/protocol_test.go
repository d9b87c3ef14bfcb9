package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coupgame/coup-server-go/internal/game/rules"
)

func TestDecodeClientMessages(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want ClientMessage
	}{
		{
			name: "join",
			raw:  `{"type":"JoinGame","payload":{"name":"Ada","room":"QWER"}}`,
			want: &JoinGame{Name: "Ada", Room: "QWER"},
		},
		{
			name: "start",
			raw:  `{"type":"StartGame","payload":{}}`,
			want: &StartGame{},
		},
		{
			name: "income",
			raw:  `{"type":"TakeAction","payload":{"action":{"type":"Income"}}}`,
			want: &TakeAction{Action: ActionRequest{Type: rules.ActionIncome}},
		},
		{
			name: "steal",
			raw:  `{"type":"TakeAction","payload":{"action":{"type":"Steal","target":{"id":"p2"}}}}`,
			want: &TakeAction{Action: ActionRequest{Type: rules.ActionSteal, Target: &PlayerRef{ID: "p2"}}},
		},
		{
			name: "block",
			raw:  `{"type":"BlockAction","payload":{"with":"duke","action":{"id":"a1","type":"ForeignAid"}}}`,
			want: &BlockAction{With: rules.CardDuke, Action: ActionRef{ID: "a1", Type: rules.ActionForeignAid}},
		},
		{
			name: "lose card",
			raw:  `{"type":"LoseCard","payload":{"card":{"id":"c1"},"action":{"id":"a1"}}}`,
			want: &LoseCard{Card: CardRef{ID: "c1"}, Action: ActionRef{ID: "a1"}},
		},
		{
			name: "choose cards",
			raw:  `{"type":"ChooseCards","payload":{"chosenCards":[{"id":"c1"}],"returnedCards":[{"id":"c2"},{"id":"c3"}]}}`,
			want: &ChooseCards{
				ChosenCards:   []CardRef{{ID: "c1"}},
				ReturnedCards: []CardRef{{ID: "c2"}, {ID: "c3"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.MessageType(), got.MessageType())
		})
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":          `{"type":`,
		"missing type":      `{"payload":{}}`,
		"missing payload":   `{"type":"StartGame"}`,
		"payload not obj":   `{"type":"StartGame","payload":[]}`,
		"unknown type":      `{"type":"Dance","payload":{}}`,
		"unknown action":    `{"type":"TakeAction","payload":{"action":{"type":"Bribe"}}}`,
		"coup no target":    `{"type":"TakeAction","payload":{"action":{"type":"Coup"}}}`,
		"block bad card":    `{"type":"BlockAction","payload":{"with":"jester","action":{"id":"a1"}}}`,
		"challenge no id":   `{"type":"ChallengeAction","payload":{"action":{}}}`,
		"lose card no card": `{"type":"LoseCard","payload":{"action":{"id":"a1"}}}`,
		"choose duplicate":  `{"type":"ChooseCards","payload":{"chosenCards":[{"id":"c1"}],"returnedCards":[{"id":"c1"}]}}`,
		"join blank name":   `{"type":"JoinGame","payload":{"name":"  ","room":"ABCD"}}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidMessage))
		})
	}
}

func TestValidationErrorsNameTheChoices(t *testing.T) {
	_, err := Decode([]byte(`{"type":"TakeAction","payload":{"action":{"type":"Bribe"}}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown action type "Bribe"`)
	for _, known := range rules.AllActionTypes {
		assert.Contains(t, err.Error(), string(known))
	}

	_, err = Decode([]byte(`{"type":"BlockAction","payload":{"with":"jester","action":{"id":"a1"}}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown card type "jester"`)
}

func TestActionDataRoundTrip(t *testing.T) {
	challengeBefore := time.Date(2024, 3, 1, 10, 0, 10, 123000000, time.UTC)
	blockBefore := challengeBefore.Add(10 * time.Second)
	target := PlayerData{ID: "p2", Name: "Bo", Coins: 1, CardCount: 2, DeadCards: []CardData{}}

	original := ActionData{
		ID:              "a1",
		Status:          rules.StatusAwaitingBlock,
		Type:            rules.ActionSteal,
		Player:          PlayerData{ID: "p1", Name: "Ada", Coins: 2, IsActive: true, CardCount: 2, DeadCards: []CardData{}},
		Target:          &target,
		ChallengeBefore: &challengeBefore,
		BlockBefore:     &blockBefore,
		CanBeBlockedBy:  OnlyMayBlock(target),
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded ActionData
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, original.ID, decoded.ID)
	assert.Equal(t, original.Status, decoded.Status)
	assert.Equal(t, original.Type, decoded.Type)
	assert.Equal(t, original.Player, decoded.Player)
	assert.Equal(t, original.Target, decoded.Target)
	require.NotNil(t, decoded.ChallengeBefore)
	require.NotNil(t, decoded.BlockBefore)
	assert.True(t, challengeBefore.Equal(*decoded.ChallengeBefore))
	assert.True(t, blockBefore.Equal(*decoded.BlockBefore))
	require.NotNil(t, decoded.CanBeBlockedBy)
	assert.Equal(t, "p2", decoded.CanBeBlockedBy.Player.ID)
}

func TestBlockersEncoding(t *testing.T) {
	data, err := json.Marshal(ActionData{ID: "a1", CanBeBlockedBy: AnyoneMayBlock()})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"canBeBlockedBy":"anyone"`)

	var decoded ActionData
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotNil(t, decoded.CanBeBlockedBy)
	assert.True(t, decoded.CanBeBlockedBy.Anyone)

	data, err = json.Marshal(ActionData{ID: "a2"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "canBeBlockedBy")

	var b Blockers
	assert.Error(t, json.Unmarshal([]byte(`"nobody"`), &b))
}

func TestEnvelopeCarriesContext(t *testing.T) {
	you := PlayerData{ID: "p1", Name: "Ada"}
	env := NewTurn(you).WithContext(Context{
		RoomData: RoomData{
			Status:         rules.RoomInProgress,
			Code:           "QWER",
			MinimumPlayers: 2,
			Players:        []PlayerData{you},
		},
		You: you,
	})

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "NewTurn", decoded["type"])

	ctx, ok := decoded["context"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "QWER", ctx["code"])
	assert.Equal(t, "inProgress", ctx["status"])
	assert.Equal(t, "p1", ctx["you"].(map[string]any)["id"])
}

func TestServerMessagePayloads(t *testing.T) {
	data, err := json.Marshal(GameStarted())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"GameStarted","payload":{}}`, string(data))

	data, err = json.Marshal(NewHand(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"NewHand","payload":{"hand":[]}}`, string(data))

	data, err = json.Marshal(UnauthorisedAction("It is not your turn."))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"UnauthorisedAction","payload":{"message":"It is not your turn."}}`, string(data))
}
