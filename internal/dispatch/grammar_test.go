package dispatch

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

// fixedNow pins the year the parser stamps onto D/M dates.
var fixedNow = time.Date(2025, time.June, 15, 10, 30, 0, 0, time.Local)

func pinClock(t *testing.T) {
	t.Helper()
	orig := timeNow
	timeNow = func() time.Time { return fixedNow }
	t.Cleanup(func() { timeNow = orig })
}

// dm builds the date the parser should produce for a D/M capture.
func dm(day, month int) *time.Time {
	d := time.Date(2025, time.Month(month), day, 0, 0, 0, 0, time.Local)
	return &d
}

// ============================================================================
// parseLine Tests
// ============================================================================

func TestParseLine(t *testing.T) {
	pinClock(t)

	tests := []struct {
		name string
		raw  string
		want ParsedLine
		skip bool // true when the grammar should drop the line
	}{
		{
			name: "canonical line",
			raw:  "185) A Tuyến: CHÙA VẼ - An Tảo, Hưng Yên- GAOU6458814- Lấy 23/12, giao sáng 24/12- 01x40 HDPE-VN H5604F",
			want: ParsedLine{
				LineNumber:    185,
				DriverName:    "A Tuyến",
				PickupText:    "CHÙA VẼ",
				DeliveryText:  "An Tảo, Hưng Yên",
				ContainerCode: "GAOU6458814",
				EquipmentSize: "40",
				CargoNote:     "HDPE-VN H5604F",
				PickupDate:    dm(23, 12),
				DeliveryDate:  dm(24, 12),
				DeliveryShift: ShiftMorning,
			},
		},
		{
			name: "delivery address and contact tail",
			raw:  "186) A Phúc: TÂN VŨ - KCN Texhong- TEMU1234567- lấy 5/1, giao chiều 6/1- 2x20 vải; giao kho B: Số 5 đường N5, KCN Texhong (A Quang 0912345678)",
			want: ParsedLine{
				LineNumber:      186,
				DriverName:      "A Phúc",
				PickupText:      "TÂN VŨ",
				DeliveryText:    "KCN Texhong",
				ContainerCode:   "TEMU1234567",
				EquipmentSize:   "20",
				CargoNote:       "vải",
				PickupDate:      dm(5, 1),
				DeliveryDate:    dm(6, 1),
				DeliveryShift:   ShiftAfternoon,
				DeliveryAddress: "Số 5 đường N5, KCN Texhong",
				DeliveryContact: "A Quang 0912345678",
			},
		},
		{
			name: "contact with missing closing parenthesis",
			raw:  "12) A Hùng: ĐÌNH VŨ - Nam Định- 1x40; kho mới: Lô CN5, KCN Hòa Xá (chị Thu 0987654321",
			want: ParsedLine{
				LineNumber:      12,
				DriverName:      "A Hùng",
				PickupText:      "ĐÌNH VŨ",
				DeliveryText:    "Nam Định",
				EquipmentSize:   "40",
				CargoNote:       "",
				DeliveryShift:   ShiftMorning,
				DeliveryAddress: "Lô CN5, KCN Hòa Xá",
				DeliveryContact: "chị Thu 0987654321",
			},
		},
		{
			name: "driver only, no colon",
			raw:  "187) A Dũng",
			want: ParsedLine{
				LineNumber:    187,
				DriverName:    "A Dũng",
				EquipmentSize: "40",
				DeliveryShift: ShiftMorning,
			},
		},
		{
			name: "evening shift and 45 foot box",
			raw:  "7) A Sơn: CÁT LÁI - Bình Dương- lấy 2/3, giao tối 3/3- 1x45",
			want: ParsedLine{
				LineNumber:    7,
				DriverName:    "A Sơn",
				PickupText:    "CÁT LÁI",
				DeliveryText:  "Bình Dương",
				EquipmentSize: "45",
				PickupDate:    dm(2, 3),
				DeliveryDate:  dm(3, 3),
				DeliveryShift: ShiftEvening,
			},
		},
		{
			name: "delivery without shift keyword defaults to morning",
			raw:  "8) A Hà: HOÀNG DIỆU - Hải Dương- giao 9/4- 1x20",
			want: ParsedLine{
				LineNumber:    8,
				DriverName:    "A Hà",
				PickupText:    "HOÀNG DIỆU",
				DeliveryText:  "Hải Dương",
				EquipmentSize: "20",
				DeliveryDate:  dm(9, 4),
				DeliveryShift: ShiftMorning,
			},
		},
		{
			name: "uppercase shift keyword",
			raw:  "9) A Bình: NAM HẢI - Vĩnh Phúc- GIAO CHIỀU 7/8- 1x40",
			want: ParsedLine{
				LineNumber:    9,
				DriverName:    "A Bình",
				PickupText:    "NAM HẢI",
				DeliveryText:  "Vĩnh Phúc",
				EquipmentSize: "40",
				DeliveryDate:  dm(7, 8),
				DeliveryShift: ShiftAfternoon,
			},
		},
		{
			name: "equipment sizes outside 20 40 45 are skipped",
			raw:  "10) A Nam: ĐÌNH VŨ - Thái Bình- 3x35 1x40 gạo",
			want: ParsedLine{
				LineNumber:    10,
				DriverName:    "A Nam",
				PickupText:    "ĐÌNH VŨ",
				DeliveryText:  "Thái Bình",
				EquipmentSize: "40",
				CargoNote:     "gạo",
				DeliveryShift: ShiftMorning,
			},
		},
		{
			name: "no valid equipment keeps the default and no cargo note",
			raw:  "11) A Long: CHÙA VẼ - Hà Nội- 5x99 thép cuộn",
			want: ParsedLine{
				LineNumber:    11,
				DriverName:    "A Long",
				PickupText:    "CHÙA VẼ",
				DeliveryText:  "Hà Nội",
				EquipmentSize: "40",
				DeliveryShift: ShiftMorning,
			},
		},
		{
			name: "out of range date is dropped",
			raw:  "13) A Tú: ĐOẠN XÁ - Hà Nam- lấy 40/13- 1x20",
			want: ParsedLine{
				LineNumber:    13,
				DriverName:    "A Tú",
				PickupText:    "ĐOẠN XÁ",
				DeliveryText:  "Hà Nam",
				EquipmentSize: "20",
				DeliveryShift: ShiftMorning,
			},
		},
		{
			name: "cargo note keeps internal hyphens",
			raw:  "14) A Kiên: VIP GREEN - Bắc Ninh- 1x40 PP-R nhựa; gấp",
			want: ParsedLine{
				LineNumber:    14,
				DriverName:    "A Kiên",
				PickupText:    "VIP GREEN",
				DeliveryText:  "Bắc Ninh",
				EquipmentSize: "40",
				CargoNote:     "PP-R nhựa",
				DeliveryShift: ShiftMorning,
			},
		},
		{
			name: "date header is skipped",
			raw:  "----------23/12----------",
			skip: true,
		},
		{
			name: "blank line is skipped",
			raw:  "   ",
			skip: true,
		},
		{
			name: "line without numbered prefix is skipped",
			raw:  "Ghi chú: chiều nay nghỉ",
			skip: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseLine(tt.raw, fixedNow)

			if tt.skip {
				if ok {
					t.Fatalf("parseLine(%q) parsed, want skip", tt.raw)
				}
				return
			}
			if !ok {
				t.Fatalf("parseLine(%q) skipped, want parse", tt.raw)
			}
			assertLine(t, got, tt.want)
		})
	}
}

// assertLine compares every parsed field with a distinct message so a
// grammar regression names the field it broke.
func assertLine(t *testing.T, got, want ParsedLine) {
	t.Helper()

	if got.LineNumber != want.LineNumber {
		t.Errorf("LineNumber = %d, want %d", got.LineNumber, want.LineNumber)
	}
	if got.DriverName != want.DriverName {
		t.Errorf("DriverName = %q, want %q", got.DriverName, want.DriverName)
	}
	if got.PickupText != want.PickupText {
		t.Errorf("PickupText = %q, want %q", got.PickupText, want.PickupText)
	}
	if got.DeliveryText != want.DeliveryText {
		t.Errorf("DeliveryText = %q, want %q", got.DeliveryText, want.DeliveryText)
	}
	if got.ContainerCode != want.ContainerCode {
		t.Errorf("ContainerCode = %q, want %q", got.ContainerCode, want.ContainerCode)
	}
	if got.EquipmentSize != want.EquipmentSize {
		t.Errorf("EquipmentSize = %q, want %q", got.EquipmentSize, want.EquipmentSize)
	}
	if got.CargoNote != want.CargoNote {
		t.Errorf("CargoNote = %q, want %q", got.CargoNote, want.CargoNote)
	}
	if !equalDate(got.PickupDate, want.PickupDate) {
		t.Errorf("PickupDate = %s, want %s", fmtDate(got.PickupDate), fmtDate(want.PickupDate))
	}
	if !equalDate(got.DeliveryDate, want.DeliveryDate) {
		t.Errorf("DeliveryDate = %s, want %s", fmtDate(got.DeliveryDate), fmtDate(want.DeliveryDate))
	}
	if got.DeliveryShift != want.DeliveryShift {
		t.Errorf("DeliveryShift = %q, want %q", got.DeliveryShift, want.DeliveryShift)
	}
	if got.DeliveryAddress != want.DeliveryAddress {
		t.Errorf("DeliveryAddress = %q, want %q", got.DeliveryAddress, want.DeliveryAddress)
	}
	if got.DeliveryContact != want.DeliveryContact {
		t.Errorf("DeliveryContact = %q, want %q", got.DeliveryContact, want.DeliveryContact)
	}
}

func equalDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func fmtDate(d *time.Time) string {
	if d == nil {
		return "<nil>"
	}
	return d.Format("2006-01-02")
}

// ============================================================================
// ParseText Tests
// ============================================================================

func TestParseText(t *testing.T) {
	pinClock(t)

	text := strings.Join([]string{
		"----------23/12----------",
		"185) A Tuyến: CHÙA VẼ - An Tảo, Hưng Yên- GAOU6458814- Lấy 23/12, giao sáng 24/12- 01x40 HDPE-VN H5604F",
		"",
		"ghi chú chung cho cả đội",
		"186) A Phúc: TÂN VŨ - KCN Texhong- 2x20 vải",
		"----------24/12----------",
	}, "\n")

	lines := ParseText(text)

	if len(lines) != 2 {
		t.Fatalf("ParseText returned %d lines, want 2", len(lines))
	}
	if lines[0].LineNumber != 185 || lines[1].LineNumber != 186 {
		t.Errorf("line numbers = [%d %d], want [185 186]", lines[0].LineNumber, lines[1].LineNumber)
	}
}

func TestParseText_CRLF(t *testing.T) {
	pinClock(t)

	lines := ParseText("1) A Ba: X - Y- 1x20\r\n2) A Tư: X - Z- 1x40\r\n")

	if len(lines) != 2 {
		t.Fatalf("ParseText returned %d lines, want 2", len(lines))
	}
	if lines[0].EquipmentSize != "20" || lines[1].EquipmentSize != "40" {
		t.Errorf("equipment = [%s %s], want [20 40]",
			lines[0].EquipmentSize, lines[1].EquipmentSize)
	}
}

func TestParseText_KeepsDuplicateLineNumbers(t *testing.T) {
	pinClock(t)

	lines := ParseText("5) A Năm: X - Y\n5) A Sáu: X - Z")

	if len(lines) != 2 {
		t.Fatalf("ParseText returned %d lines, want 2", len(lines))
	}
	if lines[0].LineNumber != 5 || lines[1].LineNumber != 5 {
		t.Errorf("line numbers = [%d %d], want both 5", lines[0].LineNumber, lines[1].LineNumber)
	}
	if lines[0].DriverName == lines[1].DriverName {
		t.Errorf("duplicate lines collapsed, both drivers %q", lines[0].DriverName)
	}
}

func TestParseText_Empty(t *testing.T) {
	if lines := ParseText(""); len(lines) != 0 {
		t.Errorf("ParseText(\"\") returned %d lines, want 0", len(lines))
	}
}

// ============================================================================
// Benchmark
// ============================================================================

func BenchmarkParseText(b *testing.B) {
	var sb strings.Builder
	sb.WriteString("----------23/12----------\n")
	for i := 1; i <= 50; i++ {
		fmt.Fprintf(&sb, "%d) A Tuyến: CHÙA VẼ - An Tảo, Hưng Yên- GAOU6458814- Lấy 23/12, giao sáng 24/12- 01x40 HDPE-VN H5604F\n", i)
	}
	text := sb.String()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ParseText(text)
	}
}
