package quantize

import (
	"testing"

	"github.com/samcharles93/affine/internal/tensor"
)

func makeInt4Vals(r, c int) *tensor.Int8Mat {
	m := tensor.NewInt8Mat(r, c)
	for i := range m.Data {
		m.Data[i] = int8((i % 16) - 8) // covers the full [-8,7] range
	}
	return m
}

func TestPackUnpackRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		r, c int
	}{
		{"even rows", 6, 5},
		{"odd rows", 5, 3},
		{"single row", 1, 4},
		{"two rows", 2, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := makeInt4Vals(tc.r, tc.c)
			packed := PackInt4(q)
			if packed.R != PackedRows(tc.r) {
				t.Fatalf("packed rows: got %d, want %d", packed.R, PackedRows(tc.r))
			}
			back := UnpackInt4(packed, tc.r)
			if back.R != tc.r || back.C != tc.c {
				t.Fatalf("unpacked shape: got (%d,%d), want (%d,%d)", back.R, back.C, tc.r, tc.c)
			}
			for i := range q.Data {
				if q.Data[i] != back.Data[i] {
					t.Fatalf("idx %d: %d != %d", i, q.Data[i], back.Data[i])
				}
			}
		})
	}
}

func TestPackNibbleLayout(t *testing.T) {
	q := tensor.NewInt8MatFromData(2, 2, []int8{
		-8, 7, // low nibbles
		-1, 3, // high nibbles
	})
	packed := PackInt4(q)
	// -8 -> 0x8, -1 -> 0xF: byte 0xF8; 7 -> 0x7, 3 -> 0x3: byte 0x37.
	if byte(packed.Data[0]) != 0xF8 {
		t.Fatalf("byte 0: got %#02x, want 0xF8", byte(packed.Data[0]))
	}
	if byte(packed.Data[1]) != 0x37 {
		t.Fatalf("byte 1: got %#02x, want 0x37", byte(packed.Data[1]))
	}
}

func TestPackOddRowZeroPartner(t *testing.T) {
	q := tensor.NewInt8MatFromData(3, 1, []int8{1, 2, -3})
	packed := PackInt4(q)
	// The unpaired final row gets a zero high nibble.
	if byte(packed.Data[1]) != 0x0D {
		t.Fatalf("final byte: got %#02x, want 0x0d", byte(packed.Data[1]))
	}
}

func TestUnpackRejectsBadRowCount(t *testing.T) {
	packed := PackInt4(makeInt4Vals(4, 2))
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for mismatched row count")
		}
	}()
	UnpackInt4(packed, 7)
}
