package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"chat-relay/wire"
)

type testGroupSuite struct {
	BaseWsSuite
}

func TestGroupSuite(t *testing.T) {
	suite.Run(t, &testGroupSuite{})
}

func (s *testGroupSuite) post(path string, body any) *http.Response {
	raw, err := json.Marshal(body)
	s.Require().NoError(err)
	resp, err := http.Post(fmt.Sprintf("http://%s%s", s.Config.ServerAddr, path),
		"application/json", bytes.NewReader(raw))
	s.Require().NoError(err)
	return resp
}

func (s *testGroupSuite) TestGroupMessageFlow() {
	groupID := "grp-" + uuid.NewString()[:8]
	alice := "alice-" + uuid.NewString()[:8]
	bob := "bob-" + uuid.NewString()[:8]
	carol := "carol-" + uuid.NewString()[:8]

	s.Run("Step 1: the roster is assembled over HTTP", func() {
		for _, member := range []string{alice, bob, carol} {
			resp := s.post(fmt.Sprintf("/api/groups/%s/members", groupID), map[string]string{"userId": member})
			s.Require().Equal(http.StatusOK, resp.StatusCode)
			s.Require().NoError(resp.Body.Close())
		}
	})

	sender := s.Connect("Alice connects", "/ws/groups", alice)
	defer sender.Close()
	member := s.Connect("Bob connects", "/ws/groups", bob)
	defer member.Close()
	// Carol stays offline.

	time.Sleep(200 * time.Millisecond)

	body := fmt.Sprintf("standup at %s", time.Now().Format(time.RFC3339Nano))

	s.Run("Step 2: Alice sends, receives her own copy, then the ack", func() {
		sender.Send(map[string]string{
			"type": "sendGroupMessage", "senderId": alice, "grpId": groupID, "message": body,
		})
		// The fan-out runs before the ack is written, and the sender is on
		// the roster too.
		sender.Expect(wire.TypeReceiveGroupMessage)
		ack := sender.Expect(wire.TypeAck)
		s.Require().Equal(groupID, ack.GroupID)
	})

	s.Run("Step 3: the connected member receives the plaintext copy", func() {
		env := member.Expect(wire.TypeReceiveGroupMessage)
		s.Require().Equal(groupID, env.GroupID)
		s.Require().Equal(alice, env.SenderID)
		s.Require().Equal(body, env.Message)
	})

	s.Run("Step 4: history returns the message decrypted", func() {
		resp, err := http.Get(fmt.Sprintf("http://%s/api/groups/%s/messages", s.Config.ServerAddr, groupID))
		s.Require().NoError(err)
		defer resp.Body.Close()
		s.Require().Equal(http.StatusOK, resp.StatusCode)

		var history struct {
			GroupID  string `json:"groupId"`
			Messages []struct {
				SenderID string `json:"senderId"`
				Content  string `json:"content"`
			} `json:"messages"`
		}
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(&history))
		s.Require().Equal(groupID, history.GroupID)
		s.Require().NotEmpty(history.Messages)
		s.Require().Equal(alice, history.Messages[0].SenderID)
		s.Require().Equal(body, history.Messages[0].Content)
	})

	s.Run("Step 5: a removed member is no longer fanned out to", func() {
		req, err := http.NewRequest(http.MethodDelete,
			fmt.Sprintf("http://%s/api/groups/%s/members/%s", s.Config.ServerAddr, groupID, bob), nil)
		s.Require().NoError(err)
		resp, err := http.DefaultClient.Do(req)
		s.Require().NoError(err)
		s.Require().Equal(http.StatusOK, resp.StatusCode)
		s.Require().NoError(resp.Body.Close())

		sender.Send(map[string]string{
			"type": "sendGroupMessage", "senderId": alice, "grpId": groupID, "message": "after removal",
		})
		// The sender is still on the roster and gets its own copy; Bob's
		// connection stays silent.
		sender.Expect(wire.TypeReceiveGroupMessage)
		sender.Expect(wire.TypeAck)
		s.Require().NoError(member.conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
		var env wire.Envelope
		s.Require().Error(member.conn.ReadJSON(&env), "removed member must not receive the message")
	})
}
