package e2e

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	"chat-relay/wire"
)

// BaseWsSuite drives a running relay over real websocket connections. Each
// helper opens its own connection so a scenario can hold several identities
// at once, the way real clients do.
type BaseWsSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseWsSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)

	if s.Config.ServerAddr == "" {
		s.T().Skip("SERVER_ADDR not set, skipping e2e scenarios")
	}
}

// Client is one registered relay connection.
type Client struct {
	suite *BaseWsSuite
	name  string
	conn  *websocket.Conn
}

// Connect dials one relay endpoint, prints a colorized header and registers
// the given user id on it.
func (s *BaseWsSuite) Connect(name, path, userID string) *Client {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)

	url := fmt.Sprintf("ws://%s%s", s.Config.ServerAddr, path)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err, "Failed to connect to relay at "+url)

	c := &Client{suite: s, name: name, conn: conn}
	c.Send(map[string]string{"type": "register", "userId": userID})
	return c
}

func (c *Client) Close() {
	_ = c.conn.Close()
}

func (c *Client) Send(frame any) {
	if c.suite.Config.DebugJSON {
		raw, _ := json.MarshalIndent(frame, "", "  ")
		c.suite.T().Logf("%s >>\n%s", c.name, raw)
	}
	c.suite.Require().NoError(c.conn.WriteJSON(frame))
}

// Expect reads the next envelope and asserts its type.
func (c *Client) Expect(t wire.Type) wire.Envelope {
	c.suite.Require().NoError(c.conn.SetReadDeadline(time.Now().Add(10 * time.Second)))
	var env wire.Envelope
	c.suite.Require().NoError(c.conn.ReadJSON(&env), "%s: reading next envelope", c.name)
	if c.suite.Config.DebugJSON {
		raw, _ := json.MarshalIndent(env, "", "  ")
		c.suite.T().Logf("%s <<\n%s", c.name, raw)
	}
	c.suite.Require().Equal(t, env.Type, "%s: unexpected envelope type (error=%q)", c.name, env.Error)
	return env
}
