package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/pithecene-io/seam/adapter"
	"github.com/pithecene-io/seam/digest"
	"github.com/pithecene-io/seam/merger"
)

func runMergeJSON(t *testing.T, stdin io.Reader, args ...string) (MergeReport, int) {
	t.Helper()
	args = append([]string{"merge", "--format", "json", "--log-level", "error"}, args...)
	out, err := runApp(t, stdin, args...)
	var report MergeReport
	if strings.TrimSpace(out) != "" {
		report = decodeJSON[MergeReport](t, out)
	}
	return report, exitCode(err)
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return b
}

func TestMerge_FromDir_File(t *testing.T) {
	src := writeSegments(t, 0, 1, 2, 3, 4)
	out := filepath.Join(t.TempDir(), "out.ts")

	report, code := runMergeJSON(t, nil, "--out", out, "--from", src, "--workers", "3")
	if code != exitSuccess {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if !report.Complete || report.Position != 5 || report.Total != 5 {
		t.Errorf("report = %+v, want complete at 5/5", report)
	}
	if report.Submitted != 5 || report.Resumed {
		t.Errorf("submitted = %d resumed = %v, want 5 false", report.Submitted, report.Resumed)
	}
	if report.Metrics == nil {
		t.Error("report has no metrics snapshot")
	}
	if got := readFile(t, out); !bytes.Equal(got, concat(5)) {
		t.Errorf("output = %q, want %q", got, concat(5))
	}
	if _, err := os.Stat(merger.StatePath(out)); !os.IsNotExist(err) {
		t.Errorf("state file should be removed after completion, stat err = %v", err)
	}
}

func TestMerge_IncompleteThenResume(t *testing.T) {
	src := writeSegments(t, 0, 1, 3)
	out := filepath.Join(t.TempDir(), "out.ts")

	report, code := runMergeJSON(t, nil, "--out", out, "--from", src, "--total", "4")
	if code != exitIncomplete {
		t.Fatalf("exit code = %d, want %d", code, exitIncomplete)
	}
	if report.Complete || report.Position != 2 {
		t.Errorf("report = %+v, want incomplete at 2", report)
	}
	if report.Missing != 1 {
		t.Errorf("missing = %d, want 1", report.Missing)
	}
	state, ok := merger.ReadState(merger.StatePath(out))
	if !ok || state.Position != 2 {
		t.Fatalf("state = %+v ok=%v, want position 2", state, ok)
	}

	addSegment(t, src, 2)
	report, code = runMergeJSON(t, nil, "--out", out, "--from", src, "--total", "4")
	if code != exitSuccess {
		t.Fatalf("resume exit code = %d, want 0", code)
	}
	if !report.Resumed || report.ResumedFrom != 2 {
		t.Errorf("resumed = %v from %d, want true from 2", report.Resumed, report.ResumedFrom)
	}
	if report.Submitted != 2 {
		t.Errorf("submitted = %d, want 2 (only indices 2 and 3)", report.Submitted)
	}
	if got := readFile(t, out); !bytes.Equal(got, concat(4)) {
		t.Errorf("output = %q, want %q", got, concat(4))
	}
}

func TestMerge_Directory(t *testing.T) {
	src := writeSegments(t, 0, 1, 2)
	out := filepath.Join(t.TempDir(), "out.ts")

	report, code := runMergeJSON(t, nil, "--out", out, "--from", src, "--dir")
	if code != exitSuccess {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if report.Mode != string(merger.ModeDirectory) {
		t.Errorf("mode = %q, want directory", report.Mode)
	}
	for i := range uint64(3) {
		got := readFile(t, merger.SegmentPath(out, "ts", i))
		if !bytes.Equal(got, segmentData(i)) {
			t.Errorf("segment %d = %q, want %q", i, got, segmentData(i))
		}
	}
}

func TestMerge_Directory_SkipsExisting(t *testing.T) {
	src := writeSegments(t, 0, 1, 2)
	out := filepath.Join(t.TempDir(), "out")

	if _, code := runMergeJSON(t, nil, "--out", out, "--from", src, "--dir", "--total", "3"); code != exitSuccess {
		t.Fatalf("first exit code = %d", code)
	}
	report, code := runMergeJSON(t, nil, "--out", out, "--from", src, "--dir", "--total", "3")
	if code != exitSuccess {
		t.Fatalf("second exit code = %d", code)
	}
	if report.Submitted != 0 {
		t.Errorf("submitted = %d, want 0 when every segment file exists", report.Submitted)
	}
}

func TestMerge_Digest(t *testing.T) {
	src := writeSegments(t, 0, 1, 2)
	out := filepath.Join(t.TempDir(), "out.ts")

	report, code := runMergeJSON(t, nil, "--out", out, "--from", src, "--digest")
	if code != exitSuccess {
		t.Fatalf("exit code = %d", code)
	}
	want, err := digest.File(out)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if report.Digest != want {
		t.Errorf("digest = %q, want %q", report.Digest, want)
	}
}

func TestMerge_DirectoryDigestMatchesFile(t *testing.T) {
	src := writeSegments(t, 0, 1, 2, 3)
	tmp := t.TempDir()

	file, _ := runMergeJSON(t, nil, "--out", filepath.Join(tmp, "out.ts"), "--from", src, "--digest")
	dir, _ := runMergeJSON(t, nil, "--out", filepath.Join(tmp, "parts"), "--from", src, "--dir", "--digest")
	if file.Digest == "" || file.Digest != dir.Digest {
		t.Errorf("file digest %q != directory digest %q", file.Digest, dir.Digest)
	}
}

func TestMerge_Frames(t *testing.T) {
	src := writeSegments(t, 0, 1, 2, 3, 4, 5)
	stream, err := runApp(t, nil, "pack", "--from", src, "--shuffle", "--seed", "42")
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	out := filepath.Join(t.TempDir(), "out.ts")

	report, code := runMergeJSON(t, strings.NewReader(stream), "--out", out, "--frames", "-", "--total", "6")
	if code != exitSuccess {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if !report.Complete {
		t.Errorf("report = %+v, want complete", report)
	}
	if got := readFile(t, out); !bytes.Equal(got, concat(6)) {
		t.Errorf("output = %q, want %q", got, concat(6))
	}
}

func TestMerge_FramesFile_Incomplete(t *testing.T) {
	src := writeSegments(t, 0, 2, 3)
	stream, err := runApp(t, nil, "pack", "--from", src, "--total", "4")
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	tmp := t.TempDir()
	framesPath := filepath.Join(tmp, "segments.frames")
	if err := os.WriteFile(framesPath, []byte(stream), 0o644); err != nil {
		t.Fatalf("write frames: %v", err)
	}

	report, code := runMergeJSON(t, nil, "--out", filepath.Join(tmp, "out.ts"), "--frames", framesPath, "--total", "4")
	if code != exitIncomplete {
		t.Fatalf("exit code = %d, want %d", code, exitIncomplete)
	}
	if report.Position != 1 || report.Missing != 1 {
		t.Errorf("position = %d missing = %d, want 1 and 1", report.Position, report.Missing)
	}
	if report.FramesRead != 3 || report.FramesDropped != 0 {
		t.Errorf("frames read = %d dropped = %d, want 3 and 0", report.FramesRead, report.FramesDropped)
	}

	// A rerun resumes at 1 and drops the already merged segment 0.
	report, code = runMergeJSON(t, nil, "--out", filepath.Join(tmp, "out.ts"), "--frames", framesPath, "--total", "4")
	if code != exitIncomplete {
		t.Fatalf("rerun exit code = %d, want %d", code, exitIncomplete)
	}
	if report.FramesRead != 3 || report.FramesDropped != 1 || report.FramesSkipped != 0 {
		t.Errorf("frames read = %d dropped = %d skipped = %d, want 3, 1, 0",
			report.FramesRead, report.FramesDropped, report.FramesSkipped)
	}
}

func TestMerge_FramesSkipsUndecodablePayload(t *testing.T) {
	src := writeSegments(t, 0, 1)
	stream, err := runApp(t, nil, "pack", "--from", src, "--no-end")
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	// A well-framed payload that is not msgpack.
	bad := []byte{0, 0, 0, 2, 0xc1, 0xc1}
	input := append(bad, []byte(stream)...)

	out := filepath.Join(t.TempDir(), "out.ts")
	report, code := runMergeJSON(t, bytes.NewReader(input), "--out", out, "--frames", "-", "--total", "2")
	if code != exitSuccess {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if report.FramesSkipped != 1 || report.FramesRead != 2 {
		t.Errorf("frames skipped = %d read = %d, want 1 and 2", report.FramesSkipped, report.FramesRead)
	}
}

func TestMerge_LogsCarryTarget(t *testing.T) {
	src := writeSegments(t, 0, 1)
	out := filepath.Join(t.TempDir(), "out.ts")

	_, stderr, err := runAppStderr(t, nil, "merge", "--quiet", "--out", out, "--from", src)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	var found bool
	for _, line := range strings.Split(strings.TrimSpace(stderr), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("log line %q is not JSON: %v", line, err)
		}
		if entry["target"] != out || entry["mode"] != "file" {
			t.Errorf("log entry lacks target context: %v", entry)
		}
		if entry["message"] == "merge finished" {
			found = true
		}
	}
	if !found {
		t.Errorf("no \"merge finished\" entry in:\n%s", stderr)
	}
}

func TestMerge_UsageErrors(t *testing.T) {
	src := writeSegments(t, 0)
	out := filepath.Join(t.TempDir(), "out.ts")

	tests := []struct {
		name string
		args []string
	}{
		{"no source", []string{"--out", out}},
		{"both sources", []string{"--out", out, "--from", src, "--frames", "-"}},
		{"frames without total", []string{"--out", out, "--frames", "-"}},
		{"zero total", []string{"--out", out, "--from", src, "--total", "0"}},
		{"zero workers", []string{"--out", out, "--from", src, "--workers", "0"}},
		{"out-ext without dir", []string{"--out", out, "--from", src, "--out-ext", "ts"}},
		{"bad format", []string{"--out", out, "--from", src, "--format", "xml"}},
		{"bad notify type", []string{"--out", out, "--from", src, "--notify-type", "sqs", "--notify-url", "x"}},
		{"notify without url", []string{"--out", out, "--from", src, "--notify-type", "webhook"}},
		{"bad header", []string{"--out", out, "--from", src, "--notify-type", "webhook", "--notify-url", "http://x", "--notify-header", "nocolon"}},
		{"missing config", []string{"--out", out, "--from", src, "--config", filepath.Join(src, "nope.yaml")}},
		{"extra args", []string{"--out", out, "--from", src, "extra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runApp(t, nil, append([]string{"merge", "--log-level", "error"}, tt.args...)...)
			if code := exitCode(err); code != exitUsage {
				t.Errorf("exit code = %d, want %d (err: %v)", code, exitUsage, err)
			}
		})
	}
}

func TestMerge_EmptySourceNeedsTotal(t *testing.T) {
	src := writeSegments(t)
	_, err := runApp(t, nil, "merge", "--log-level", "error", "--out", filepath.Join(t.TempDir(), "o"), "--from", src)
	if code := exitCode(err); code != exitUsage {
		t.Errorf("exit code = %d, want %d", code, exitUsage)
	}
}

func TestMerge_MissingSourceDir(t *testing.T) {
	tmp := t.TempDir()
	_, err := runApp(t, nil, "merge", "--log-level", "error",
		"--out", filepath.Join(tmp, "o"), "--from", filepath.Join(tmp, "absent"))
	if code := exitCode(err); code != exitIO {
		t.Errorf("exit code = %d, want %d", code, exitIO)
	}
}

func TestMerge_ConfigFile(t *testing.T) {
	src := writeSegments(t, 0, 1)
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "seam.yaml")
	cfg := "mode: directory\nformat: yaml\nlog:\n  level: error\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	out := filepath.Join(tmp, "parts")

	stdout, err := runApp(t, nil, "merge", "--config", cfgPath, "--out", out, "--from", src)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !strings.Contains(stdout, "mode: directory") {
		t.Errorf("expected yaml report in directory mode, got:\n%s", stdout)
	}
	if _, err := os.Stat(merger.SegmentPath(out, "", 1)); err != nil {
		t.Errorf("segment file missing: %v", err)
	}
}

func TestMerge_ConfigOverriddenByFlag(t *testing.T) {
	src := writeSegments(t, 0, 1)
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "seam.yaml")
	if err := os.WriteFile(cfgPath, []byte("mode: directory\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	out := filepath.Join(tmp, "out.bin")

	report, code := runMergeJSON(t, nil, "--config", cfgPath, "--dir=false", "--out", out, "--from", src)
	if code != exitSuccess {
		t.Fatalf("exit code = %d", code)
	}
	if report.Mode != string(merger.ModeFile) {
		t.Errorf("mode = %q, want file", report.Mode)
	}
}

func TestMerge_Quiet(t *testing.T) {
	src := writeSegments(t, 0)
	stdout, err := runApp(t, nil, "merge", "--quiet", "--log-level", "error",
		"--out", filepath.Join(t.TempDir(), "o"), "--from", src)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if stdout != "" {
		t.Errorf("stdout = %q, want empty", stdout)
	}
}

func TestMerge_NotifyWebhook(t *testing.T) {
	received := make(chan adapter.MergeCompletedEvent, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Token"); got != "secret" {
			t.Errorf("X-Token = %q, want secret", got)
		}
		var ev adapter.MergeCompletedEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			t.Errorf("decode: %v", err)
		}
		received <- ev
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	src := writeSegments(t, 0, 1, 2)
	out := filepath.Join(t.TempDir(), "out.ts")
	report, code := runMergeJSON(t, nil, "--out", out, "--from", src, "--digest",
		"--notify-type", "webhook", "--notify-url", ts.URL, "--notify-header", "X-Token: secret")
	if code != exitSuccess {
		t.Fatalf("exit code = %d", code)
	}
	if report.Notified != "webhook" {
		t.Errorf("notified = %q, want webhook", report.Notified)
	}

	select {
	case ev := <-received:
		if ev.EventType != adapter.EventTypeMergeCompleted || ev.Target != out || ev.Total != 3 {
			t.Errorf("event = %+v", ev)
		}
		if ev.Digest != report.Digest {
			t.Errorf("event digest = %q, want %q", ev.Digest, report.Digest)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no webhook request received")
	}
}

func TestMerge_NotifyRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	sub := mr.NewSubscriber()
	defer sub.Close()
	sub.Subscribe("merges")

	received := make(chan miniredis.PubsubMessage, 1)
	go func() { received <- <-sub.Messages() }()

	src := writeSegments(t, 0, 1)
	report, code := runMergeJSON(t, nil, "--out", filepath.Join(t.TempDir(), "out"), "--from", src, "--dir",
		"--notify-type", "redis", "--notify-url", "redis://"+mr.Addr(), "--notify-channel", "merges")
	if code != exitSuccess {
		t.Fatalf("exit code = %d", code)
	}
	if report.Notified != "redis" {
		t.Errorf("notified = %q, want redis", report.Notified)
	}

	select {
	case msg := <-received:
		var ev adapter.MergeCompletedEvent
		if err := json.Unmarshal([]byte(msg.Message), &ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev.Mode != "directory" || ev.Position != 2 {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no redis message received")
	}
}

func TestMerge_NotifyFailureIsNotFatal(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	src := writeSegments(t, 0)
	report, code := runMergeJSON(t, nil, "--out", filepath.Join(t.TempDir(), "o"), "--from", src,
		"--notify-type", "webhook", "--notify-url", ts.URL)
	if code != exitSuccess {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if report.Notified != "" {
		t.Errorf("notified = %q, want empty", report.Notified)
	}
}

func TestMerge_IncompleteSkipsNotify(t *testing.T) {
	called := make(chan struct{}, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called <- struct{}{}
	}))
	defer ts.Close()

	src := writeSegments(t, 1)
	_, code := runMergeJSON(t, nil, "--out", filepath.Join(t.TempDir(), "o"), "--from", src, "--total", "2",
		"--notify-type", "webhook", "--notify-url", ts.URL)
	if code != exitIncomplete {
		t.Fatalf("exit code = %d, want %d", code, exitIncomplete)
	}
	select {
	case <-called:
		t.Error("webhook called for an incomplete merge")
	default:
	}
}

func TestBuildMergeCompletedEvent(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.FixedZone("x", 3600))
	ev := buildMergeCompletedEvent(&MergeReport{
		Target:      "/data/out.ts",
		Mode:        "file",
		Total:       3,
		Position:    3,
		StoredBytes: 45,
		Resumed:     true,
		DurationMs:  120,
	}, now)

	if ev.Timestamp != "2026-10-19T11:00:00Z" {
		t.Errorf("timestamp = %q, want UTC RFC3339", ev.Timestamp)
	}
	if ev.EventType != adapter.EventTypeMergeCompleted || ev.DurationMs != 120 || !ev.Resumed {
		t.Errorf("event = %+v", ev)
	}
}
