package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"time"
)

const (
	defaultBinary = "whisper-server"
	startTimeout  = 30 * time.Second
)

// Server owns a whisper.cpp server subprocess loaded with one model and
// speaks its HTTP inference API. The subprocess keeps the model in
// memory across requests, which is what makes per-segment calls cheap.
type Server struct {
	modelPath string
	bin       string
	threads   int

	baseURL string
	client  *http.Client
	cmd     *exec.Cmd
}

func NewServer(modelPath string) *Server {
	bin := os.Getenv("MURMUR_WHISPER_BIN")
	if bin == "" {
		bin = defaultBinary
	}
	return &Server{
		modelPath: modelPath,
		bin:       bin,
		client:    &http.Client{},
	}
}

// Start launches the subprocess and blocks until it answers health
// checks. A missing binary or model reports ErrModelUnavailable.
func (s *Server) Start(ctx context.Context) error {
	if _, err := os.Stat(s.modelPath); err != nil {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	binPath, err := exec.LookPath(s.bin)
	if err != nil {
		return fmt.Errorf("%w: %s not found in PATH", ErrModelUnavailable, s.bin)
	}
	port, err := freePort()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	args := []string{
		"--model", s.modelPath,
		"--host", "127.0.0.1",
		"--port", strconv.Itoa(port),
	}
	if s.threads > 0 {
		args = append(args, "--threads", strconv.Itoa(s.threads))
	}
	cmd := exec.Command(binPath, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start %s: %v", ErrModelUnavailable, s.bin, err)
	}
	s.cmd = cmd
	s.baseURL = "http://127.0.0.1:" + strconv.Itoa(port)

	if err := s.waitReady(ctx); err != nil {
		s.Close()
		return err
	}
	return nil
}

func (s *Server) waitReady(ctx context.Context) error {
	deadline := time.Now().Add(startTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
		if err != nil {
			return err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			continue // still loading the model
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return nil
		}
	}
	return fmt.Errorf("%w: server did not become ready in %s", ErrModelUnavailable, startTimeout)
}

// Transcribe posts one WAV segment to the inference endpoint.
func (s *Server) Transcribe(ctx context.Context, wav []byte, opts Options) (*Result, error) {
	if s.baseURL == "" {
		return nil, fmt.Errorf("%w: server not started", ErrModelUnavailable)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "segment.wav")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(wav); err != nil {
		return nil, err
	}
	writer.WriteField("response_format", "verbose_json")
	writer.WriteField("temperature", "0.0")
	writer.WriteField("no_context", strconv.FormatBool(!opts.ConditionOnPrevious))
	lang := opts.Language
	if lang == "" {
		lang = "auto"
	}
	writer.WriteField("language", lang)
	if opts.WordTimestamps {
		writer.WriteField("word_timestamps", "true")
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/inference", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrInferenceFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInferenceFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: %s", ErrInferenceFailed, resp.Status, bytes.TrimSpace(raw))
	}
	return parseVerbose(raw)
}

func parseVerbose(raw []byte) (*Result, error) {
	var parsed struct {
		Text     string  `json:"text"`
		Language string  `json:"language"`
		Duration float64 `json:"duration"`
		Segments []struct {
			Start float64 `json:"start"`
			End   float64 `json:"end"`
			Text  string  `json:"text"`
			Words []struct {
				Word        string  `json:"word"`
				Start       float64 `json:"start"`
				End         float64 `json:"end"`
				Probability float64 `json:"probability"`
			} `json:"words"`
		} `json:"segments"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrInferenceFailed, err)
	}

	res := &Result{
		Language: parsed.Language,
		Text:     parsed.Text,
		AudioS:   parsed.Duration,
	}
	for _, seg := range parsed.Segments {
		if res.AudioS < seg.End {
			res.AudioS = seg.End
		}
		for _, w := range seg.Words {
			res.Words = append(res.Words, Word{
				Text:        w.Word,
				Start:       w.Start,
				End:         w.End,
				Probability: w.Probability,
			})
		}
	}
	return res, nil
}

// Close stops the subprocess. Safe to call more than once.
func (s *Server) Close() error {
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	s.cmd.Process.Kill()
	err := s.cmd.Wait()
	s.cmd = nil
	if err != nil && err.Error() != "signal: killed" {
		return err
	}
	return nil
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
