package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"
)

var (
	ErrUnsupportedWAV = errors.New("unsupported wav format")
	ErrInvalidWAV     = errors.New("invalid wav file")
)

// Analysis summarizes the level and length of a PCM or float WAV file.
type Analysis struct {
	RMSdBFS  float64
	PeakdBFS float64
	Samples  int64
	Duration time.Duration
}

type wavFormat struct {
	audioFormat   uint16
	channels      uint16
	sampleRate    uint32
	bitsPerSample uint16
}

// Silent reports whether the analysis falls below thresholdDBFS. The peak may
// exceed the threshold by 6 dB to tolerate clicks.
func (a Analysis) Silent(thresholdDBFS float64) bool {
	if a.Samples == 0 {
		return true
	}
	if math.IsInf(a.RMSdBFS, -1) && math.IsInf(a.PeakdBFS, -1) {
		return true
	}
	return a.RMSdBFS <= thresholdDBFS && a.PeakdBFS <= thresholdDBFS+6
}

// AnalyzeWAV streams the data chunk of path; memory use does not grow with
// the length of the recording.
func AnalyzeWAV(path string) (Analysis, error) {
	f, err := os.Open(path)
	if err != nil {
		return Analysis{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	format, dataSize, err := locateData(f)
	if err != nil {
		return Analysis{}, err
	}

	bytesPerSample := int(format.bitsPerSample / 8)
	reader := bufio.NewReaderSize(io.LimitReader(f, int64(dataSize)), 64*1024)
	sample := make([]byte, bytesPerSample)

	var (
		peak       float64
		sumSquares float64
		samples    int64
	)
	for {
		if _, err := io.ReadFull(reader, sample); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return Analysis{}, fmt.Errorf("read wav data: %w", err)
		}

		value, err := decodeSample(sample, format.audioFormat, format.bitsPerSample)
		if err != nil {
			return Analysis{}, err
		}
		if abs := math.Abs(value); abs > peak {
			peak = abs
		}
		sumSquares += value * value
		samples++
	}

	analysis := Analysis{Samples: samples, RMSdBFS: math.Inf(-1), PeakdBFS: math.Inf(-1)}
	if format.sampleRate > 0 && format.channels > 0 {
		frames := float64(samples) / float64(format.channels)
		analysis.Duration = time.Duration(frames / float64(format.sampleRate) * float64(time.Second))
	}
	if samples > 0 {
		analysis.RMSdBFS = amplitudeToDBFS(math.Sqrt(sumSquares / float64(samples)))
		analysis.PeakdBFS = amplitudeToDBFS(peak)
	}
	return analysis, nil
}

// locateData parses the RIFF header and leaves r positioned at the start of
// the data chunk.
func locateData(r io.ReadSeeker) (wavFormat, uint32, error) {
	header := make([]byte, 12)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return wavFormat{}, 0, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
		}
		return wavFormat{}, 0, fmt.Errorf("read wav header: %w", err)
	}
	if string(header[:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return wavFormat{}, 0, ErrInvalidWAV
	}

	var (
		format wavFormat
		hasFmt bool
	)
	chunkHeader := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, chunkHeader); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return wavFormat{}, 0, ErrInvalidWAV
			}
			return wavFormat{}, 0, fmt.Errorf("read wav chunk header: %w", err)
		}

		chunkID := string(chunkHeader[:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])
		skip := int64(chunkSize)
		if chunkSize%2 != 0 {
			skip++
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return wavFormat{}, 0, ErrInvalidWAV
			}
			buf := make([]byte, chunkSize)
			if _, err := io.ReadFull(r, buf); err != nil {
				return wavFormat{}, 0, fmt.Errorf("read wav fmt chunk: %w", err)
			}
			format = wavFormat{
				audioFormat:   binary.LittleEndian.Uint16(buf[0:2]),
				channels:      binary.LittleEndian.Uint16(buf[2:4]),
				sampleRate:    binary.LittleEndian.Uint32(buf[4:8]),
				bitsPerSample: binary.LittleEndian.Uint16(buf[14:16]),
			}
			hasFmt = true
			if chunkSize%2 != 0 {
				if _, err := r.Seek(1, io.SeekCurrent); err != nil {
					return wavFormat{}, 0, fmt.Errorf("seek wav fmt padding: %w", err)
				}
			}
		case "data":
			if !hasFmt {
				return wavFormat{}, 0, ErrInvalidWAV
			}
			if err := validateFormat(format.audioFormat, format.bitsPerSample); err != nil {
				return wavFormat{}, 0, err
			}
			return format, chunkSize, nil
		default:
			if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
				return wavFormat{}, 0, fmt.Errorf("seek wav chunk %s: %w", chunkID, err)
			}
		}
	}
}

func validateFormat(audioFormat, bitsPerSample uint16) error {
	switch audioFormat {
	case 1:
		switch bitsPerSample {
		case 8, 16, 24, 32:
			return nil
		}
	case 3:
		switch bitsPerSample {
		case 32, 64:
			return nil
		}
	}
	return ErrUnsupportedWAV
}

func decodeSample(sample []byte, audioFormat, bitsPerSample uint16) (float64, error) {
	if audioFormat == 3 {
		switch bitsPerSample {
		case 32:
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(sample))), nil
		case 64:
			return math.Float64frombits(binary.LittleEndian.Uint64(sample)), nil
		default:
			return 0, ErrUnsupportedWAV
		}
	}

	switch bitsPerSample {
	case 8:
		return (float64(sample[0]) - 128.0) / 128.0, nil
	case 16:
		return float64(int16(binary.LittleEndian.Uint16(sample))) / 32768.0, nil
	case 24:
		v := int32(sample[0]) | int32(sample[1])<<8 | int32(sample[2])<<16
		if v&0x800000 != 0 {
			v |= ^0xFFFFFF
		}
		return float64(v) / 8388608.0, nil
	case 32:
		return float64(int32(binary.LittleEndian.Uint32(sample))) / 2147483648.0, nil
	default:
		return 0, ErrUnsupportedWAV
	}
}

func amplitudeToDBFS(amplitude float64) float64 {
	if amplitude <= 0 {
		return math.Inf(-1)
	}
	return 20.0 * math.Log10(amplitude)
}
