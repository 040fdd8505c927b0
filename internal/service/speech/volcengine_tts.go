package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	speechmodel "github.com/jansunwai/assistant/internal/model/speech"
)

const defaultTTSURL = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"

// VolcengineTTSClient talks to the Volcengine streaming TTS websocket.
type VolcengineTTSClient struct {
	config *speechmodel.SpeechConfig
	dialer *websocket.Dialer
	logger *zap.Logger
}

type ttsServerMessage struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
	Addition struct {
		Duration string `json:"duration,omitempty"`
	} `json:"addition,omitempty"`
}

type volcengineTTSRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string                   `json:"speaker"`
		Text        string                   `json:"text"`
		AudioParams volcengineTTSAudioParams `json:"audio_params"`
		Language    string                   `json:"language,omitempty"`
	} `json:"req_params"`
}

type volcengineTTSAudioParams struct {
	Format      string  `json:"format"`
	SampleRate  int     `json:"sample_rate"`
	SpeedRatio  float32 `json:"speed_ratio,omitempty"`
	VolumeRatio float32 `json:"volume_ratio,omitempty"`
}

// NewVolcengineTTSClient creates a TTS client.
func NewVolcengineTTSClient(config *speechmodel.SpeechConfig, logger *zap.Logger) *VolcengineTTSClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VolcengineTTSClient{
		config: config,
		dialer: &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		logger: logger.Named("volcengine_tts"),
	}
}

// Synthesize renders req to audio. When the engine rejects a speaker for the
// chosen resource the next resource, then the next speaker, is tried.
func (c *VolcengineTTSClient) Synthesize(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("tts text is empty")
	}
	appKey, accessKey, err := resolveCredentials(c.config)
	if err != nil {
		return nil, err
	}

	encoding := strings.TrimSpace(req.Format)
	if encoding == "" || encoding == "wav" {
		encoding = "mp3"
	}

	speakers := speakerCandidates(req.Voice, c.config.DefaultVoice)
	var lastMismatch error

	for _, speaker := range speakers {
		for _, resourceID := range resourceCandidates(speaker, c.config.TTSResource) {
			resp, err := c.synthesizeWith(ctx, req, appKey, accessKey, speaker, encoding, resourceID)
			if err == nil {
				resp.Voice = speaker
				return resp, nil
			}
			if !isResourceMismatch(err) {
				return nil, err
			}
			c.logger.Info("tts resource mismatch",
				zap.String("speaker", speaker),
				zap.String("resource", resourceID),
			)
			lastMismatch = err
		}
	}

	if lastMismatch != nil {
		return nil, lastMismatch
	}
	return nil, fmt.Errorf("no compatible resource for speakers %v", speakers)
}

func (c *VolcengineTTSClient) synthesizeWith(
	ctx context.Context,
	req *speechmodel.TTSRequest,
	appKey, accessKey, speaker, encoding, resourceID string,
) (*speechmodel.TTSResponse, error) {
	connectID := uuid.NewString()

	header := http.Header{}
	header.Set("X-Api-App-Key", appKey)
	header.Set("X-Api-Access-Key", accessKey)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	url := strings.TrimSpace(c.config.TTSURL)
	if url == "" {
		url = defaultTTSURL
	}

	conn, resp, err := c.dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("connect tts websocket: %w", err)
	}
	defer conn.Close()

	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			c.logger.Debug("tts connected", zap.String("logid", logid))
		}
	}

	// unblock ReadMessage when ctx is canceled mid-stream
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	uid := strings.TrimSpace(req.SessionID)
	if uid == "" {
		uid = uuid.NewString()
	}
	payload, err := json.Marshal(buildTTSRequest(req, uid, speaker, encoding))
	if err != nil {
		return nil, fmt.Errorf("encode tts request: %w", err)
	}
	request, err := newClientRequest(payload)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, encodeFrame(request)); err != nil {
		return nil, fmt.Errorf("send tts request: %w", err)
	}

	var (
		audio    bytes.Buffer
		reqID    string
		duration int64
	)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read tts response: %w", err)
		}

		msg, err := decodeFrame(data)
		if err != nil {
			return nil, fmt.Errorf("decode tts frame: %w", err)
		}
		body, err := msg.payload()
		if err != nil {
			return nil, fmt.Errorf("decompress tts frame: %w", err)
		}

		switch msg.Type {
		case frameError:
			return nil, fmt.Errorf("tts error %d: %s", msg.ErrorCode, string(body))

		case frameAudioOnlyResponse:
			audio.Write(body)
			if msg.last() {
				return c.finish(req, uid, connectID, reqID, encoding, duration, &audio)
			}

		case frameFullServerResponse:
			var server ttsServerMessage
			if len(body) > 0 {
				if err := json.Unmarshal(body, &server); err != nil {
					c.logger.Debug("unparsed tts payload", zap.Error(err))
				} else {
					if server.Code != 0 && server.Code != 3000 {
						return nil, fmt.Errorf("tts api error %d: %s", server.Code, server.Message)
					}
					if server.ReqID != "" {
						reqID = server.ReqID
					}
					if ms, err := strconv.ParseInt(server.Addition.Duration, 10, 64); err == nil {
						duration = ms
					}
					if server.Data != "" {
						chunk, err := base64.StdEncoding.DecodeString(server.Data)
						if err != nil {
							return nil, fmt.Errorf("decode tts audio chunk: %w", err)
						}
						audio.Write(chunk)
					}
				}
			}

			if msg.hasEvent() && msg.Event == eventSessionFailed {
				return nil, fmt.Errorf("tts session failed: %s", string(body))
			}
			finished := (msg.hasEvent() && msg.Event == eventSessionFinished) || msg.last() || server.Sequence < 0
			if finished {
				return c.finish(req, uid, connectID, reqID, encoding, duration, &audio)
			}

		default:
			c.logger.Debug("unexpected tts frame", zap.Uint8("type", uint8(msg.Type)))
		}
	}
}

func (c *VolcengineTTSClient) finish(req *speechmodel.TTSRequest, uid, connectID, reqID, encoding string, duration int64, audio *bytes.Buffer) (*speechmodel.TTSResponse, error) {
	if audio.Len() == 0 {
		return nil, errors.New("tts audio is empty")
	}
	if reqID == "" {
		reqID = connectID
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uid
	}
	return &speechmodel.TTSResponse{
		SessionID: sessionID,
		AudioData: audio.Bytes(),
		Format:    encoding,
		Lang:      req.Lang,
		RequestID: reqID,
		Duration:  duration,
		CreatedAt: time.Now(),
	}, nil
}

func buildTTSRequest(req *speechmodel.TTSRequest, uid, speaker, encoding string) *volcengineTTSRequest {
	out := &volcengineTTSRequest{}
	out.User.UID = uid
	out.ReqParams.Speaker = speaker
	out.ReqParams.Text = req.Text
	out.ReqParams.AudioParams.Format = encoding
	out.ReqParams.AudioParams.SampleRate = 24000

	if req.Rate > 0 && req.Rate != 1 {
		out.ReqParams.AudioParams.SpeedRatio = req.Rate
	}
	if req.Volume > 0 && req.Volume != 1 {
		out.ReqParams.AudioParams.VolumeRatio = req.Volume
	}
	if lang := strings.TrimSpace(req.Lang); lang != "" {
		// the engine takes bare language codes
		out.ReqParams.Language = strings.ToLower(strings.SplitN(lang, "-", 2)[0])
	}
	return out
}

func resolveCredentials(cfg *speechmodel.SpeechConfig) (string, string, error) {
	if cfg == nil {
		return "", "", ErrSynthesisDisabled
	}
	appID := strings.TrimSpace(cfg.AppID)
	token := strings.TrimSpace(cfg.AccessToken)
	if appID == "" || token == "" {
		return "", "", fmt.Errorf("%w: app id or access token missing", ErrSynthesisDisabled)
	}
	return appID, token, nil
}

func resourceCandidates(voice, configured string) []string {
	const (
		legacyResource = "volc.service_type.10029"
		megaResource   = "volc.megatts.default"
		seedResource   = "seed-tts-2.0"
	)

	var derived []string
	voice = strings.ToLower(strings.TrimSpace(voice))
	switch {
	case strings.HasPrefix(voice, "s_"):
		derived = []string{megaResource}
	case strings.Contains(voice, "bigtts"), strings.Contains(voice, "seed"):
		derived = []string{seedResource, legacyResource}
	default:
		derived = []string{legacyResource, seedResource}
	}

	return dedupe(append([]string{configured}, derived...))
}

func speakerCandidates(requested, fallback string) []string {
	candidates := dedupe([]string{requested, fallback})
	if len(candidates) == 0 {
		return []string{"en_female_amy_jupiter_bigtts"}
	}
	return candidates
}

func dedupe(in []string) []string {
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		seen := false
		for _, existing := range out {
			if strings.EqualFold(existing, s) {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, s)
		}
	}
	return out
}

func isResourceMismatch(err error) bool {
	return err != nil && strings.Contains(err.Error(), "resource ID is mismatched with speaker related resource")
}
