package pcm

import (
	"math"
	"testing"
)

func TestEncodeScaling(t *testing.T) {
	data := Encode([]float32{1.0, -1.0, 0.0})
	samples := BytesToSamples(data)

	if samples[0] != 32767 {
		t.Errorf("expected +1.0 to encode to 32767, got %d", samples[0])
	}
	if samples[1] != -32768 {
		t.Errorf("expected -1.0 to encode to -32768, got %d", samples[1])
	}
	if samples[2] != 0 {
		t.Errorf("expected 0.0 to encode to 0, got %d", samples[2])
	}
}

func TestEncodeClamps(t *testing.T) {
	data := Encode([]float32{2.5, -3.0})
	samples := BytesToSamples(data)

	if samples[0] != 32767 {
		t.Errorf("expected clamp to 32767, got %d", samples[0])
	}
	if samples[1] != -32768 {
		t.Errorf("expected clamp to -32768, got %d", samples[1])
	}
}

func TestRoundTrip(t *testing.T) {
	in := make([]float32, 512)
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 16000))
	}

	buf, err := Decode(Encode(in), 16000, 1)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	out := buf.Mono()
	if len(out) != len(in) {
		t.Fatalf("expected %d samples, got %d", len(in), len(out))
	}

	// One quantization step at 16 bits.
	const step = 1.0 / 32768.0
	for i := range in {
		if diff := math.Abs(float64(in[i]) - float64(out[i])); diff > step {
			t.Fatalf("sample %d: diff %f exceeds quantization step", i, diff)
		}
	}
}

func TestSilenceDecodesToZero(t *testing.T) {
	buf, err := Decode(make([]byte, 64), 24000, 1)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	for i, s := range buf.Mono() {
		if s != 0 {
			t.Fatalf("sample %d: expected exact zero, got %f", i, s)
		}
	}
}

func TestDecodeInvalid(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		channels int
	}{
		{"odd length", []byte{0x01, 0x02, 0x03}, 1},
		{"not multiple of channels", make([]byte, 6), 2},
		{"zero channels", make([]byte, 4), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.data, 16000, tt.channels); err != ErrInvalidAudioData {
				t.Errorf("expected ErrInvalidAudioData, got %v", err)
			}
		})
	}
}

func TestDecodeStereo(t *testing.T) {
	// Interleaved L=100, R=-100 for 4 frames.
	samples := []int16{100, -100, 100, -100, 100, -100, 100, -100}
	buf, err := Decode(SamplesToBytes(samples), 24000, 2)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if buf.FrameCount() != 4 {
		t.Fatalf("expected 4 frames, got %d", buf.FrameCount())
	}
	for i := 0; i < 4; i++ {
		if buf.Channels[0][i] != 100.0/32768.0 {
			t.Errorf("left frame %d wrong: %f", i, buf.Channels[0][i])
		}
		if buf.Channels[1][i] != -100.0/32768.0 {
			t.Errorf("right frame %d wrong: %f", i, buf.Channels[1][i])
		}
	}
}

func TestDecodeBase64(t *testing.T) {
	in := []float32{0.25, -0.25, 0.5}
	buf, err := DecodeBase64(EncodeBase64(in), 16000, 1)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if buf.FrameCount() != 3 {
		t.Fatalf("expected 3 frames, got %d", buf.FrameCount())
	}

	if _, err := DecodeBase64("not-base64!!!", 16000, 1); err != ErrInvalidAudioData {
		t.Errorf("expected ErrInvalidAudioData for bad base64, got %v", err)
	}
}

func TestDuration(t *testing.T) {
	buf := &Buffer{
		Channels:   [][]float32{make([]float32, 24000)},
		SampleRate: 24000,
	}
	if d := buf.Duration(); d != 1.0 {
		t.Errorf("expected 1s duration, got %f", d)
	}

	empty := &Buffer{}
	if d := empty.Duration(); d != 0 {
		t.Errorf("expected 0 duration for empty buffer, got %f", d)
	}
}

func TestResample(t *testing.T) {
	samples := make([]int16, 160)
	for i := range samples {
		samples[i] = int16(i * 100)
	}

	down := Resample(samples, 48000, 16000)
	if len(down) != 53 {
		t.Errorf("expected 53 samples after 3:1 downsample, got %d", len(down))
	}

	same := Resample(samples, 16000, 16000)
	if len(same) != len(samples) {
		t.Errorf("expected identity resample, got %d samples", len(same))
	}

	if out := Resample(nil, 48000, 16000); len(out) != 0 {
		t.Errorf("expected empty output for empty input")
	}
}

func TestRMS(t *testing.T) {
	if v := RMS(nil); v != 0 {
		t.Errorf("expected 0 for empty input, got %f", v)
	}

	flat := []float32{0.5, 0.5, 0.5, 0.5}
	if v := RMS(flat); math.Abs(v-0.5) > 1e-6 {
		t.Errorf("expected RMS 0.5, got %f", v)
	}

	mixed := []float32{0.5, -0.5}
	if v := RMS(mixed); math.Abs(v-0.5) > 1e-6 {
		t.Errorf("expected RMS 0.5 for symmetric signal, got %f", v)
	}
}
