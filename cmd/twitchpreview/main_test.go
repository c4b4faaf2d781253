package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/twitchpreview/enrich/channel"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestMatchCommand_Table(t *testing.T) {
	out, err := runCLI(t, "", "match", "https://twitch.tv/ExampleChannel", "https://twitch.tv/directory")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"examplechannel", "yes", "reserved"} {
		if !strings.Contains(out, want) {
			t.Errorf("table lacks %q:\n%s", want, out)
		}
	}
}

func TestMatchCommand_JSON(t *testing.T) {
	out, err := runCLI(t, "", "match", "--json", "twitch.tv/examplechannel/clip/FunnyClip")
	if err != nil {
		t.Fatal(err)
	}
	var refs []channel.Reference
	if err := json.Unmarshal([]byte(out), &refs); err != nil {
		t.Fatal(err)
	}
	if len(refs) != 1 || refs[0].Valid || refs[0].Reason != channel.ReasonSubPath {
		t.Fatalf("got %+v", refs)
	}
}

func TestRenderCommand_Offline(t *testing.T) {
	page := `<html><body><main><div class="message_1"><div class="embedFull_3"><div class="grid_5">
<div class="embedTitle_7"><a href="https://twitch.tv/examplechannel">examplechannel</a></div>
<div class="embedThumbnail_9"><img src="https://static-cdn.example/thumb.jpg"></div>
</div></div></div></main></body></html>`

	out, err := runCLI(t, page, "render", "--offline", "--parent", "chat.example.org")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "twitch-video-preview") {
		t.Fatalf("no preview painted:\n%s", out)
	}
	if !strings.Contains(out, channel.FallbackImageURL) {
		t.Errorf("offline preview should carry the fallback image:\n%s", out)
	}
}

func TestPagesCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "pages.db")

	if _, err := runCLI(t, "", "pages", "--db", db, "add", "chat", "https://chat.example.org/channels/1", "--stealth", "false"); err != nil {
		t.Fatal(err)
	}
	out, err := runCLI(t, "", "pages", "--db", db, "list")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"chat", "https://chat.example.org/channels/1", "(page host)", "no"} {
		if !strings.Contains(out, want) {
			t.Errorf("list lacks %q:\n%s", want, out)
		}
	}

	if _, err := runCLI(t, "", "pages", "--db", db, "rm", "chat"); err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, "", "pages", "--db", db, "rm", "chat-missing"); err == nil {
		t.Fatal("removing an unknown page should fail")
	}
	out, err = runCLI(t, "", "pages", "--db", db, "list")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "chat.example.org") {
		t.Errorf("disabled page still listed:\n%s", out)
	}

	if _, err := runCLI(t, "", "pages", "list"); err == nil {
		t.Fatal("pages without --db should fail")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "warn", "auto").Warn("hello", "k", "v")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("non-terminal auto format should be JSON: %s", buf.String())
	}

	buf.Reset()
	l := newLogger(&buf, "warn", "text")
	l.Info("dropped")
	l.Warn("kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "msg=kept") {
		t.Fatalf("unexpected text output: %s", buf.String())
	}
}
