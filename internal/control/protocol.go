package control

import (
	"encoding/json"

	"github.com/wuspy/turretd/internal/turret"
)

var commandNames = map[string]turret.CommandKind{
	"fire":             turret.CommandFire,
	"release_magazine": turret.CommandReleaseMagazine,
	"load_magazine":    turret.CommandLoadMagazine,
	"reload":           turret.CommandReload,
	"fire_and_reload":  turret.CommandFireAndReload,
	"home":             turret.CommandHome,
	"motors_on":        turret.CommandMotorsOn,
	"motors_off":       turret.CommandMotorsOff,
}

type requestObject struct {
	Command *string  `json:"command"`
	Pitch   *float64 `json:"pitch"`
	Yaw     *float64 `json:"yaw"`
}

// ParseRequest decodes one line of the control wire grammar (§4.4). It
// returns ok=false for anything that doesn't match the grammar; callers
// should log and drop those, never error out the connection.
func ParseRequest(line []byte) (turret.MessageContent, bool) {
	var literal string
	if err := json.Unmarshal(line, &literal); err == nil {
		if literal == "ping" {
			return turret.ContentFromPing(), true
		}
		return turret.MessageContent{}, false
	}

	var obj requestObject
	if err := json.Unmarshal(line, &obj); err != nil {
		return turret.MessageContent{}, false
	}
	if obj.Pitch != nil && obj.Yaw != nil {
		return turret.ContentFromCommand(turret.Command{Kind: turret.CommandMove, Pitch: *obj.Pitch, Yaw: *obj.Yaw}), true
	}
	if obj.Command != nil {
		kind, ok := commandNames[*obj.Command]
		if !ok {
			return turret.MessageContent{}, false
		}
		return turret.ContentFromCommand(turret.Command{Kind: kind}), true
	}
	return turret.MessageContent{}, false
}

type queueStateResponse struct {
	QueuePosition uint32 `json:"queue_position"`
	NumClients    uint32 `json:"num_clients"`
}

// EncodeQueueState builds the queue-state broadcast line (§4.4).
func EncodeQueueState(position, numClients uint32) []byte {
	b, _ := json.Marshal(queueStateResponse{QueuePosition: position, NumClients: numClients})
	return appendNewline(b)
}

type hardwareStateResponse struct {
	Status string `json:"status"`
	Pitch  uint32 `json:"pitch"`
	Yaw    uint32 `json:"yaw"`
}

// EncodeHardwareState builds the hardware-state broadcast line (§4.4).
func EncodeHardwareState(hs turret.HardwareState) []byte {
	b, _ := json.Marshal(hardwareStateResponse{Status: hs.Status.Tag(), Pitch: hs.PitchPos, Yaw: hs.YawPos})
	return appendNewline(b)
}

type videoOfferEnvelope struct {
	VideoOffer videoOfferBody `json:"video_offer"`
}
type videoOfferBody struct {
	Nonce      string `json:"nonce"`
	RTPAddress string `json:"rtp_address"`
}

// EncodeVideoOffer builds the per-client video handshake offer line.
func EncodeVideoOffer(nonce, rtpAddress string) []byte {
	b, _ := json.Marshal(videoOfferEnvelope{VideoOffer: videoOfferBody{Nonce: nonce, RTPAddress: rtpAddress}})
	return appendNewline(b)
}

type videoStreamingEnvelope struct {
	VideoStreaming videoStreamingBody `json:"video_streaming"`
}
type videoStreamingBody struct {
	GstreamerCommand string `json:"gstreamer_command"`
}

// EncodeVideoStreaming builds the streaming-notice line. gstreamerCommand
// is the opaque decoder pipeline description forwarded verbatim from
// config (§6).
func EncodeVideoStreaming(gstreamerCommand string) []byte {
	b, _ := json.Marshal(videoStreamingEnvelope{VideoStreaming: videoStreamingBody{GstreamerCommand: gstreamerCommand}})
	return appendNewline(b)
}

type videoErrorEnvelope struct {
	VideoError videoErrorBody `json:"video_error"`
}
type videoErrorBody struct {
	Message string `json:"message"`
}

// EncodeVideoError builds the video-error line.
func EncodeVideoError(message string) []byte {
	b, _ := json.Marshal(videoErrorEnvelope{VideoError: videoErrorBody{Message: message}})
	return appendNewline(b)
}

func appendNewline(b []byte) []byte {
	return append(b, '\n')
}
