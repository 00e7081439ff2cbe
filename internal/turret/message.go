package turret

// ContentKind discriminates the closed set of MessageContent variants.
type ContentKind int

const (
	ContentHardwareState ContentKind = iota
	ContentCommand
	ContentVideoOffer
	ContentVideoStreaming
	ContentVideoError
	ContentClientConnected
	ContentClientDisconnected
	ContentPing
)

// VideoOffer is produced by the video pipeline at handshake begin and
// forwarded by the control server to ForClient only.
type VideoOffer struct {
	Nonce      string
	ForClient  Endpoint
	RTPAddress string
}

// VideoStreaming is produced on handshake success.
type VideoStreaming struct {
	ForClient Endpoint
}

// VideoError is broadcast to all clients when ForClient is nil, otherwise
// unicast to the named client.
type VideoError struct {
	Message   string
	ForClient *Endpoint
}

// MessageContent is a tagged union; only the field matching Kind is valid.
// A struct of plain value fields (rather than a variant-per-type interface
// hierarchy) keeps Message trivially copyable across bus subscribers,
// mirroring how the rest of this codebase favors plain structs over
// interface dispatch for wire-adjacent data.
type MessageContent struct {
	Kind ContentKind

	HardwareState  HardwareState
	Command        Command
	VideoOffer     VideoOffer
	VideoStreaming VideoStreaming
	VideoError     VideoError
	Client         Client
}

func ContentFromHardwareState(hs HardwareState) MessageContent {
	return MessageContent{Kind: ContentHardwareState, HardwareState: hs}
}

func ContentFromCommand(c Command) MessageContent {
	return MessageContent{Kind: ContentCommand, Command: c}
}

func ContentFromVideoOffer(o VideoOffer) MessageContent {
	return MessageContent{Kind: ContentVideoOffer, VideoOffer: o}
}

func ContentFromVideoStreaming(s VideoStreaming) MessageContent {
	return MessageContent{Kind: ContentVideoStreaming, VideoStreaming: s}
}

func ContentFromVideoError(e VideoError) MessageContent {
	return MessageContent{Kind: ContentVideoError, VideoError: e}
}

func ContentClientConnectedOf(c Client) MessageContent {
	return MessageContent{Kind: ContentClientConnected, Client: c}
}

func ContentClientDisconnectedOf(c Client) MessageContent {
	return MessageContent{Kind: ContentClientDisconnected, Client: c}
}

func ContentFromPing() MessageContent { return MessageContent{Kind: ContentPing} }

// Message is the single value type carried by the bus. It is cheap to
// copy: every subscriber gets its own copy off the fan-out channel.
type Message struct {
	Content MessageContent
	Source  MessageSource
}
