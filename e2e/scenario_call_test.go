package e2e

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"chat-relay/wire"
)

type testCallSuite struct {
	BaseWsSuite
}

func TestCallSuite(t *testing.T) {
	suite.Run(t, &testCallSuite{})
}

func (s *testCallSuite) TestCallSignalingFlow() {
	alice := "alice-" + uuid.NewString()[:8]
	bob := "bob-" + uuid.NewString()[:8]

	caller := s.Connect("Alice connects for calls", "/ws/calls", alice)
	defer caller.Close()
	callee := s.Connect("Bob connects for calls", "/ws/calls", bob)
	defer callee.Close()

	time.Sleep(200 * time.Millisecond)

	s.Run("Step 1: Alice rings Bob", func() {
		caller.Send(map[string]any{
			"type": "call", "callerId": alice, "calleeId": bob,
			"offer": map[string]string{"type": "offer", "sdp": "v=0"},
		})

		env := callee.Expect(wire.TypeIncomingCall)
		s.Require().Equal(alice, env.CallerID)
		s.Require().NotEmpty(env.Offer)
	})

	s.Run("Step 2: Bob answers and Alice hears it", func() {
		callee.Send(map[string]any{
			"type": "answer", "answer": map[string]string{"type": "answer", "sdp": "v=0"},
		})

		env := caller.Expect(wire.TypeCallAnswered)
		s.Require().NotEmpty(env.Answer)
	})

	s.Run("Step 3: ICE candidates cross over", func() {
		caller.Send(map[string]any{
			"type": "iceCandidate", "candidate": map[string]string{"candidate": "from-alice"},
		})
		env := callee.Expect(wire.TypeIceCandidate)
		s.Require().Contains(string(env.Candidate), "from-alice")

		callee.Send(map[string]any{
			"type": "iceCandidate", "candidate": map[string]string{"candidate": "from-bob"},
		})
		env = caller.Expect(wire.TypeIceCandidate)
		s.Require().Contains(string(env.Candidate), "from-bob")
	})

	s.Run("Step 4: Alice hangs up, Bob is told", func() {
		caller.Send(map[string]string{"type": "hangup"})

		callee.Expect(wire.TypeHangup)
	})

	s.Run("Step 5: Calling an absent user fails fast", func() {
		caller.Send(map[string]any{
			"type": "call", "callerId": alice,
			"calleeId": "nobody-" + uuid.NewString()[:8],
			"offer":    map[string]string{"type": "offer", "sdp": "v=0"},
		})

		env := caller.Expect(wire.TypeError)
		s.Require().Contains(env.Error, "callee")
	})
}
