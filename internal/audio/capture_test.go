package audio

import "testing"

func TestClipExt(t *testing.T) {
	cases := []struct {
		mime string
		want string
	}{
		{"audio/ogg", "ogg"},
		{"audio/ogg; codecs=opus", "ogg"},
		{"audio/wav", "wav"},
		{"audio/flac", "flac"},
		{"audio/mpeg", "mp3"},
		{"garbage", "bin"},
	}
	for _, tc := range cases {
		c := &Clip{MIME: tc.mime}
		if got := c.Ext(); got != tc.want {
			t.Errorf("Ext(%q) = %q, want %q", tc.mime, got, tc.want)
		}
	}
}

func TestMIMEForFormat(t *testing.T) {
	cases := map[string]string{
		"ogg":  "audio/ogg",
		"wav":  "audio/wav",
		"flac": "audio/flac",
		"mp3":  "audio/mpeg",
	}
	for format, want := range cases {
		if got := MIMEForFormat(format); got != want {
			t.Errorf("MIMEForFormat(%q) = %q, want %q", format, got, want)
		}
	}
}

func TestResolveOptions_Defaults(t *testing.T) {
	opts := resolveOptions(Options{})
	if opts.Backend == "" || opts.Backend == "auto" {
		t.Errorf("backend not resolved: %q", opts.Backend)
	}
	if opts.Device != "default" {
		t.Errorf("device = %q, want default", opts.Device)
	}
	if opts.SampleRate != 48000 {
		t.Errorf("sample rate = %d, want 48000", opts.SampleRate)
	}
	if opts.Format != "ogg" {
		t.Errorf("format = %q, want ogg", opts.Format)
	}
}

func TestResolveOptions_ExplicitValuesKept(t *testing.T) {
	opts := resolveOptions(Options{Backend: "alsa", Device: "hw:1", SampleRate: 44100, Format: "wav"})
	if opts.Backend != "alsa" || opts.Device != "hw:1" || opts.SampleRate != 44100 || opts.Format != "wav" {
		t.Errorf("explicit options overridden: %+v", opts)
	}
}

func TestRecorderLifecyclePreconditions(t *testing.T) {
	r := &FFmpegRecorder{opts: resolveOptions(Options{})}

	if r.Connected() {
		t.Error("Connected = true before Connect")
	}
	if err := r.Start(); err != ErrDeviceUnavailable {
		t.Errorf("Start without Connect = %v, want ErrDeviceUnavailable", err)
	}
	if _, err := r.Stop(); err != ErrNotRecording {
		t.Errorf("Stop while idle = %v, want ErrNotRecording", err)
	}
}
