package modbus

import (
	"errors"
	"reflect"
	"testing"
)

func TestBitsToInt(t *testing.T) {
	tests := []struct {
		name    string
		in      []uint16
		want    uint64
		wantErr error
	}{
		{"single zero", []uint16{0}, 0, nil},
		{"single one", []uint16{1}, 1, nil},
		{"msb first", []uint16{1, 0, 1, 1}, 11, nil},
		{"empty", nil, 0, ErrInvalidLength},
		{"too long", make([]uint16, 64), 0, ErrInvalidLength},
		{"non-bit element", []uint16{1, 2}, 0, ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BitsToInt(tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("BitsToInt() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("BitsToInt() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBitsToIntReencodes(t *testing.T) {
	// Every width from 1 to 63 bits, with a leading one so IntToBits keeps the width.
	for width := 1; width <= maxBitsLen; width++ {
		in := make([]uint16, width)
		in[0] = 1
		for i := 1; i < width; i++ {
			in[i] = uint16(i % 2)
		}
		n, err := BitsToInt(in)
		if err != nil {
			t.Fatalf("BitsToInt(width %d) error = %v", width, err)
		}
		if got := IntToBits(n); !reflect.DeepEqual(got, in) {
			t.Errorf("IntToBits(BitsToInt(%v)) = %v", in, got)
		}
	}
}

func TestBytesToInt(t *testing.T) {
	tests := []struct {
		name    string
		in      []byte
		want    uint64
		wantErr error
	}{
		{"one byte", []byte{0x7f}, 0x7f, nil},
		{"two bytes", []byte{0x01, 0x02}, 0x0102, nil},
		{"four bytes", []byte{0xde, 0xad, 0xbe, 0xef}, 0xdeadbeef, nil},
		{"empty", []byte{}, 0, ErrInvalidLength},
		{"five bytes", []byte{1, 2, 3, 4, 5}, 0, ErrInvalidLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BytesToInt(tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("BytesToInt() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("BytesToInt() = %#x, want %#x", got, tt.want)
			}
		})
	}
}

func TestWordsToInt(t *testing.T) {
	tests := []struct {
		name    string
		in      []uint16
		want    uint64
		wantErr error
	}{
		{"one word", []uint16{500}, 500, nil},
		{"two words", []uint16{0x0001, 0x0002}, 0x00010002, nil},
		{"four words", []uint16{0x1111, 0x2222, 0x3333, 0x4444}, 0x1111222233334444, nil},
		{"empty", nil, 0, ErrInvalidLength},
		{"five words", []uint16{1, 2, 3, 4, 5}, 0, ErrInvalidLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WordsToInt(tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("WordsToInt() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("WordsToInt() = %#x, want %#x", got, tt.want)
			}
		})
	}
}

func TestIntToWords(t *testing.T) {
	tests := []struct {
		in   uint64
		want []uint16
	}{
		{0, []uint16{0}},
		{500, []uint16{500}},
		{0xffff, []uint16{0xffff}},
		{0x10000, []uint16{0x0001, 0x0000}},
		{0xdeadbeef, []uint16{0xdead, 0xbeef}},
		{0x1_0000_0002, []uint16{0x0001, 0x0002}},
		{0x0001_0002_0003_0004, []uint16{0x0001, 0x0002, 0x0003, 0x0004}},
	}

	for _, tt := range tests {
		if got := IntToWords(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("IntToWords(%#x) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestIntToWordsRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 255, 256, 65535, 65536, 1 << 24, 0x7fffffff, 0xffffffff}
	for _, v := range values {
		padded, err := PadWords(IntToWords(v), 2)
		if err != nil {
			t.Fatalf("PadWords(%d) error = %v", v, err)
		}
		got, err := WordsToInt(padded)
		if err != nil {
			t.Fatalf("WordsToInt(%v) error = %v", padded, err)
		}
		if got != v {
			t.Errorf("WordsToInt(IntToWords(%d)) = %d", v, got)
		}
	}
}

func TestIntToBits(t *testing.T) {
	tests := []struct {
		in   uint64
		want []uint16
	}{
		{0, []uint16{0}},
		{1, []uint16{1}},
		{2, []uint16{1, 0}},
		{5, []uint16{1, 0, 1}},
	}

	for _, tt := range tests {
		if got := IntToBits(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("IntToBits(%d) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestReverseWordsIsInvolution(t *testing.T) {
	inputs := [][]uint16{
		{},
		{1},
		{1, 2},
		{0xabcd, 0x1234, 0x0000, 0xffff},
	}
	for _, in := range inputs {
		if got := ReverseWords(ReverseWords(in)); !reflect.DeepEqual(got, in) {
			t.Errorf("ReverseWords(ReverseWords(%v)) = %v", in, got)
		}
	}

	in := []uint16{1, 2, 3}
	if got := ReverseWords(in); !reflect.DeepEqual(got, []uint16{3, 2, 1}) {
		t.Errorf("ReverseWords(%v) = %v, want [3 2 1]", in, got)
	}
	if in[0] != 1 {
		t.Error("ReverseWords modified its input")
	}
}

func TestSwapWordBytes(t *testing.T) {
	in := []uint16{0x1234, 0xab00}
	got := SwapWordBytes(in)
	want := []uint16{0x3412, 0x00ab}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SwapWordBytes(%#v) = %#v, want %#v", in, got, want)
	}
	if back := SwapWordBytes(got); !reflect.DeepEqual(back, in) {
		t.Errorf("SwapWordBytes is not its own inverse: %#v", back)
	}
}

func TestPadWords(t *testing.T) {
	got, err := PadWords([]uint16{7}, 3)
	if err != nil {
		t.Fatalf("PadWords() error = %v", err)
	}
	if want := []uint16{0, 0, 7}; !reflect.DeepEqual(got, want) {
		t.Errorf("PadWords() = %v, want %v", got, want)
	}

	if _, err := PadWords([]uint16{1, 2}, 1); !errors.Is(err, ErrValueTooWide) {
		t.Errorf("PadWords() error = %v, want ErrValueTooWide", err)
	}
}

func TestRegisterPayloadConversion(t *testing.T) {
	words, err := wordsFromBytes([]byte{0x01, 0xf4, 0xab, 0xcd})
	if err != nil {
		t.Fatalf("wordsFromBytes() error = %v", err)
	}
	if want := []uint16{500, 0xabcd}; !reflect.DeepEqual(words, want) {
		t.Errorf("wordsFromBytes() = %v, want %v", words, want)
	}
	if got := bytesFromWords(words); !reflect.DeepEqual(got, []byte{0x01, 0xf4, 0xab, 0xcd}) {
		t.Errorf("bytesFromWords() = %#v", got)
	}
	if _, err := wordsFromBytes([]byte{1, 2, 3}); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("wordsFromBytes(odd) error = %v, want ErrInvalidLength", err)
	}
}

func TestPackCoils(t *testing.T) {
	tests := []struct {
		in   []uint16
		want []byte
	}{
		{[]uint16{1}, []byte{0x01}},
		{[]uint16{1, 0, 1}, []byte{0x05}},
		{[]uint16{0, 0, 0, 0, 0, 0, 0, 0, 1}, []byte{0x00, 0x01}},
	}
	for _, tt := range tests {
		if got := packCoils(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("packCoils(%v) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}
