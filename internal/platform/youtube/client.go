// Package youtube fetches caption transcripts through the public timedtext
// endpoint. Only caption text is consumed; no video or audio is downloaded.
package youtube

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dewiapp/dewi-backend/internal/pkg/httpx"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/utils"
)

// ErrNoCaptions reports a video with no caption tracks. The timedtext
// endpoint signals this with an empty 200 body, not a status code.
var ErrNoCaptions = errors.New("youtube: no caption tracks for video")

// Transcript is the flattened caption text for one video.
type Transcript struct {
	VideoID string
	Lang    string
	Text    string
	// CaptionMarks are rune offsets into Text where a speech pause preceded
	// the caption. They feed the chunker as structural boundaries.
	CaptionMarks []int
	Duration     time.Duration
}

type Client interface {
	FetchTranscript(ctx context.Context, videoID string) (*Transcript, error)
}

type Config struct {
	BaseURL        string
	PreferredLangs []string
	// PauseBreak is the minimum silence between captions that counts as a
	// structural boundary.
	PauseBreak time.Duration
	Timeout    time.Duration
	MaxRetries int
}

func ConfigFromEnv(log *logger.Logger) Config {
	var langs []string
	for _, l := range strings.Split(utils.GetEnv("YOUTUBE_CAPTION_LANGS", "en", log), ",") {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	return Config{
		BaseURL:        utils.GetEnv("YOUTUBE_TIMEDTEXT_BASE_URL", "https://www.youtube.com", log),
		PreferredLangs: langs,
		PauseBreak:     time.Duration(utils.GetEnvAsInt("YOUTUBE_PAUSE_BREAK_MS", 2000, log)) * time.Millisecond,
		Timeout:        time.Duration(utils.GetEnvAsInt("YOUTUBE_TIMEOUT_SECONDS", 30, log)) * time.Second,
		MaxRetries:     utils.GetEnvAsInt("YOUTUBE_MAX_RETRIES", 3, log),
	}
}

func NewFromEnv(baseLog *logger.Logger) (Client, error) {
	log := baseLog.With("component", "youtube_client")
	return New(log, ConfigFromEnv(log))
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://www.youtube.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if len(cfg.PreferredLangs) == 0 {
		cfg.PreferredLangs = []string{"en"}
	}
	if cfg.PauseBreak <= 0 {
		cfg.PauseBreak = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &client{
		log:        log,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retry: httpx.RetryPolicy{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    5 * time.Second,
		},
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
	retry      httpx.RetryPolicy
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("youtube http %d: %s", e.StatusCode, e.Body)
}

func (e *httpError) HTTPStatusCode() int { return e.StatusCode }

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ParseVideoID accepts a bare 11-character video ID or any of the common
// URL shapes (watch, youtu.be, shorts, embed, live).
func ParseVideoID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("youtube: empty video reference")
	}
	if videoIDPattern.MatchString(raw) {
		return raw, nil
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("youtube: parse url: %w", err)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")

	var id string
	switch host {
	case "youtu.be":
		if len(segs) > 0 {
			id = segs[0]
		}
	case "youtube.com", "youtube-nocookie.com":
		switch {
		case len(segs) > 0 && segs[0] == "watch":
			id = u.Query().Get("v")
		case len(segs) > 1 && (segs[0] == "shorts" || segs[0] == "embed" || segs[0] == "live"):
			id = segs[1]
		}
	}
	if !videoIDPattern.MatchString(id) {
		return "", fmt.Errorf("youtube: no video ID in %q", raw)
	}
	return id, nil
}

type trackList struct {
	XMLName xml.Name    `xml:"transcript_list"`
	Tracks  []trackInfo `xml:"track"`
}

type trackInfo struct {
	ID       string `xml:"id,attr"`
	Name     string `xml:"name,attr"`
	LangCode string `xml:"lang_code,attr"`
	Kind     string `xml:"kind,attr"`
	Default  string `xml:"lang_default,attr"`
}

type timedTextDoc struct {
	XMLName xml.Name       `xml:"transcript"`
	Texts   []timedSegment `xml:"text"`
}

type timedSegment struct {
	Start float64 `xml:"start,attr"`
	Dur   float64 `xml:"dur,attr"`
	Text  string  `xml:",chardata"`
}

func (c *client) FetchTranscript(ctx context.Context, videoRef string) (*Transcript, error) {
	id, err := ParseVideoID(videoRef)
	if err != nil {
		return nil, err
	}

	tracks, err := c.listTracks(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, ErrNoCaptions
	}
	track := pickTrack(tracks, c.cfg.PreferredLangs)

	q := url.Values{}
	q.Set("v", id)
	q.Set("lang", track.LangCode)
	if track.Name != "" {
		q.Set("name", track.Name)
	}
	if track.Kind != "" {
		q.Set("kind", track.Kind)
	}
	body, err := c.doGet(ctx, c.cfg.BaseURL+"/api/timedtext?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, ErrNoCaptions
	}

	var doc timedTextDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("youtube: decode transcript: %w", err)
	}

	t := buildTranscript(id, track.LangCode, doc.Texts, c.cfg.PauseBreak)
	if strings.TrimSpace(t.Text) == "" {
		return nil, ErrNoCaptions
	}
	c.log.Debug("Fetched transcript",
		"video_id", id,
		"lang", track.LangCode,
		"asr", track.Kind == "asr",
		"runes", utf8.RuneCountInString(t.Text),
		"marks", len(t.CaptionMarks))
	return t, nil
}

func (c *client) listTracks(ctx context.Context, id string) ([]trackInfo, error) {
	q := url.Values{}
	q.Set("type", "list")
	q.Set("v", id)
	body, err := c.doGet(ctx, c.cfg.BaseURL+"/api/timedtext?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}
	var list trackList
	if err := xml.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("youtube: decode track list: %w", err)
	}
	return list.Tracks, nil
}

func (c *client) doGet(ctx context.Context, endpoint string) ([]byte, error) {
	var body []byte
	err := c.retry.Do(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return resp, fmt.Errorf("youtube: read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg := string(raw)
			if len(msg) > 512 {
				msg = msg[:512] + "..."
			}
			return resp, &httpError{StatusCode: resp.StatusCode, Body: msg}
		}
		body = raw
		return resp, nil
	})
	return body, err
}

// pickTrack prefers manually authored tracks in the configured languages,
// then ASR tracks in those languages, then the channel default.
func pickTrack(tracks []trackInfo, prefs []string) trackInfo {
	for _, lang := range prefs {
		for _, t := range tracks {
			if langMatches(t.LangCode, lang) && t.Kind != "asr" {
				return t
			}
		}
		for _, t := range tracks {
			if langMatches(t.LangCode, lang) {
				return t
			}
		}
	}
	for _, t := range tracks {
		if t.Default == "true" {
			return t
		}
	}
	return tracks[0]
}

func langMatches(code, want string) bool {
	code = strings.ToLower(code)
	want = strings.ToLower(want)
	return code == want || strings.HasPrefix(code, want+"-")
}

var cueOnlyPattern = regexp.MustCompile(`^\[[^\]]*\]$`)

func buildTranscript(id, lang string, segs []timedSegment, pause time.Duration) *Transcript {
	var b strings.Builder
	var marks []int
	runeLen := 0
	prevEnd := 0.0
	first := true

	for _, seg := range segs {
		text := cleanCaptionText(seg.Text)
		if text == "" {
			continue
		}
		if !first {
			b.WriteString(" ")
			runeLen++
			if seg.Start-prevEnd >= pause.Seconds() {
				marks = append(marks, runeLen)
			}
		}
		b.WriteString(text)
		runeLen += utf8.RuneCountInString(text)
		if end := seg.Start + seg.Dur; end > prevEnd {
			prevEnd = end
		}
		first = false
	}

	return &Transcript{
		VideoID:      id,
		Lang:         lang,
		Text:         b.String(),
		CaptionMarks: marks,
		Duration:     time.Duration(prevEnd * float64(time.Second)),
	}
}

// cleanCaptionText unescapes entities the XML layer left behind (timedtext
// double-escapes apostrophes), flattens caption line wraps, and drops
// cue-only segments like [Music].
func cleanCaptionText(s string) string {
	s = html.UnescapeString(s)
	s = strings.Join(strings.Fields(s), " ")
	if cueOnlyPattern.MatchString(s) {
		return ""
	}
	return s
}
