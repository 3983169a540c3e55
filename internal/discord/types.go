// Package discord is a small Discord client: the gateway connection that
// receives slash-command interactions and the REST calls the bot needs to
// answer them, edit them later and send direct messages.
package discord

import (
	"encoding/json"
	"strconv"
)

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opResume         = 6
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatAck   = 11
)

// IntentGuilds is the only intent needed to receive interactions.
const IntentGuilds = 1 << 0

// Interaction types.
const (
	InteractionPing             = 1
	InteractionApplicationCmd   = 2
	InteractionMessageComponent = 3
)

// Interaction response types.
const (
	ResponseChannelMessage         = 4
	ResponseDeferredChannelMessage = 5
)

// FlagEphemeral hides a response from everyone but the caller.
const FlagEphemeral = 64

// Command option types.
const (
	OptionSubCommand = 1
	OptionString     = 3
	OptionInteger    = 4
	OptionBoolean    = 5
	OptionUser       = 6
)

type payload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type hello struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type identify struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties identifyProperties `json:"properties"`
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type resume struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

type ready struct {
	SessionID        string `json:"session_id"`
	ResumeGatewayURL string `json:"resume_gateway_url"`
	User             User   `json:"user"`
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type Member struct {
	User User `json:"user"`
}

// Interaction is an INTERACTION_CREATE payload.
type Interaction struct {
	ID            string          `json:"id"`
	ApplicationID string          `json:"application_id"`
	Type          int             `json:"type"`
	Token         string          `json:"token"`
	GuildID       string          `json:"guild_id,omitempty"`
	ChannelID     string          `json:"channel_id,omitempty"`
	Member        *Member         `json:"member,omitempty"`
	User          *User           `json:"user,omitempty"`
	Data          InteractionData `json:"data"`
}

// UserID is the caller in guilds and in DMs.
func (i *Interaction) UserID() string {
	if i.Member != nil && i.Member.User.ID != "" {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

type InteractionData struct {
	ID      string              `json:"id,omitempty"`
	Name    string              `json:"name"`
	Options []InteractionOption `json:"options,omitempty"`
}

// InteractionOption is a command argument or a subcommand with its own options.
type InteractionOption struct {
	Name    string              `json:"name"`
	Type    int                 `json:"type"`
	Value   json.RawMessage     `json:"value,omitempty"`
	Options []InteractionOption `json:"options,omitempty"`
}

// String returns the option value as text, unquoting JSON strings.
func (o InteractionOption) String() string {
	var s string
	if err := json.Unmarshal(o.Value, &s); err == nil {
		return s
	}
	return string(o.Value)
}

func (o InteractionOption) Int() (int64, bool) {
	var f float64
	if err := json.Unmarshal(o.Value, &f); err == nil {
		return int64(f), true
	}
	n, err := strconv.ParseInt(o.String(), 10, 64)
	return n, err == nil
}

func (o InteractionOption) Bool() bool {
	var b bool
	_ = json.Unmarshal(o.Value, &b)
	return b
}

type InteractionResponse struct {
	Type int                      `json:"type"`
	Data *InteractionResponseData `json:"data,omitempty"`
}

type InteractionResponseData struct {
	Content string `json:"content,omitempty"`
	Flags   int    `json:"flags,omitempty"`
}

type messageEdit struct {
	Content string `json:"content"`
}

type messageCreate struct {
	Content string `json:"content"`
}

type dmCreate struct {
	RecipientID string `json:"recipient_id"`
}

type Channel struct {
	ID string `json:"id"`
}

// Command is an application command definition for registration.
type Command struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Options     []CommandOption `json:"options,omitempty"`
}

type CommandOption struct {
	Type        int             `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Required    bool            `json:"required,omitempty"`
	Options     []CommandOption `json:"options,omitempty"`
}
