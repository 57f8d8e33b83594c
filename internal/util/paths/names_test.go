package paths

import "testing"

func TestEnsureExtension(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"song", "song.mp3"},
		{"song.mp3", "song.mp3"},
		{"song.MP3", "song.MP3"},
		{"song.wav", "song.wav.mp3"},
	}
	for _, tt := range tests {
		if got := EnsureExtension(tt.input); got != tt.expected {
			t.Errorf("EnsureExtension(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestSuggestFileName(t *testing.T) {
	tests := []struct {
		title    string
		expected string
	}{
		{"Song A", "Song A.mp3"},
		{"AC/DC: Live", "AC-DC - Live.mp3"},
		{"", "downloaded_file.mp3"},
		{"...", "downloaded_file.mp3"},
		{"Already.mp3", "Already.mp3"},
	}
	for _, tt := range tests {
		if got := SuggestFileName(tt.title); got != tt.expected {
			t.Errorf("SuggestFileName(%q) = %q, want %q", tt.title, got, tt.expected)
		}
	}
}

func TestNormalizeFileName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "downloaded_file.mp3"},
		{"   ", "downloaded_file.mp3"},
		{".mp3", "downloaded_file.mp3"},
		{"my tape", "my tape.mp3"},
		{"  my tape.mp3 ", "my tape.mp3"},
	}
	for _, tt := range tests {
		if got := NormalizeFileName(tt.input); got != tt.expected {
			t.Errorf("NormalizeFileName(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
