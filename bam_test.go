/* Copyright (C) 2016-2024 Philipp Benner
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package rustynetics

/* -------------------------------------------------------------------------- */

import   "bytes"
import   "compress/gzip"
import   "encoding/binary"
import   "errors"
import   "os"
import   "path/filepath"
import   "testing"

/* test fixtures
 * -------------------------------------------------------------------------- */

// Since no binary test data is available, bam files are assembled
// programmatically: alignment blocks and the bam header are serialized
// by hand and compressed with gzip, which the bgzf reader accepts.

type bamTestRead struct {
  RefID int
  Pos   int
  Name  string
  Flag  uint16
  MapQ  byte
  Cigar []uint32
}

func bamTestBlock(read bamTestRead) []byte {
  buffer   := bytes.Buffer{}
  readName := append([]byte(read.Name), 0)

  binMqNl := uint32(0)<<16 | uint32(read.MapQ)<<8 | uint32(len(readName))
  flagNc  := uint32(read.Flag)<<16 | uint32(len(read.Cigar))

  binary.Write(&buffer, binary.LittleEndian, int32(read.RefID))
  binary.Write(&buffer, binary.LittleEndian, int32(read.Pos))
  binary.Write(&buffer, binary.LittleEndian, binMqNl)
  binary.Write(&buffer, binary.LittleEndian, flagNc)
  // l_seq (sequence and qualities are not stored)
  binary.Write(&buffer, binary.LittleEndian, int32(0))
  binary.Write(&buffer, binary.LittleEndian, int32(-1))
  binary.Write(&buffer, binary.LittleEndian, int32(-1))
  binary.Write(&buffer, binary.LittleEndian, int32(0))
  buffer.Write(readName)
  binary.Write(&buffer, binary.LittleEndian, read.Cigar)

  return buffer.Bytes()
}

func bamTestPayload(genome Genome, reads []bamTestRead) []byte {
  buffer := bytes.Buffer{}
  text   := "@HD\tVN:1.6\n"

  buffer.WriteString("BAM\001")
  binary.Write(&buffer, binary.LittleEndian, int32(len(text)))
  buffer.WriteString(text)
  binary.Write(&buffer, binary.LittleEndian, int32(genome.Length()))
  for i := 0; i < genome.Length(); i++ {
    name := append([]byte(genome.Seqnames[i]), 0)
    binary.Write(&buffer, binary.LittleEndian, int32(len(name)))
    buffer.Write(name)
    binary.Write(&buffer, binary.LittleEndian, int32(genome.Lengths[i]))
  }
  for _, read := range reads {
    block := bamTestBlock(read)
    binary.Write(&buffer, binary.LittleEndian, int32(len(block)))
    buffer.Write(block)
  }
  return buffer.Bytes()
}

func bamTestCompress(data []byte) []byte {
  buffer := bytes.Buffer{}
  writer := gzip.NewWriter(&buffer)
  writer.Write(data)
  writer.Close()
  return buffer.Bytes()
}

func writeTestBam(t *testing.T, genome Genome, reads []bamTestRead) string {
  t.Helper()
  filename := filepath.Join(t.TempDir(), "test.bam")

  if err := os.WriteFile(filename, bamTestCompress(bamTestPayload(genome, reads)), 0666); err != nil {
    t.Fatal(err)
  }
  return filename
}

/* -------------------------------------------------------------------------- */

func TestBamHeader(t *testing.T) {

  genome := NewGenome([]string{"chr1", "chr2"}, []int{1000, 500})

  reader, err := NewBamReader(bytes.NewReader(bamTestCompress(bamTestPayload(genome, nil))))
  if err != nil {
    t.Fatal(err)
  }
  if reader.Header.Text != "@HD\tVN:1.6\n" {
    t.Errorf("invalid header text: %s", reader.Header.Text)
  }
  if !reader.Genome.Equals(genome) {
    t.Errorf("invalid genome: %v", reader.Genome)
  }
  // the file has no alignments
  for r := range reader.ReadSingleEnd() {
    t.Errorf("unexpected alignment block: %+v", r)
  }
}

func TestBamReadSingleEnd(t *testing.T) {

  genome := NewGenome([]string{"chr1"}, []int{10000})

  reads := []bamTestRead{
    // forward read with a plain cigar string
    {RefID: 0, Pos: 100, Name: "r1", Flag: 0, MapQ: 30,
      Cigar: []uint32{50<<4 | 0}}, // 50M
    // reverse read with skipped reference bases and a soft clip
    {RefID: 0, Pos: 300, Name: "r2", Flag: 16, MapQ: 20,
      Cigar: []uint32{5<<4 | 4, 20<<4 | 0, 10<<4 | 3, 20<<4 | 0}} } // 5S20M10N20M

  data := bamTestCompress(bamTestPayload(genome, reads))

  // check alignment blocks
  reader, err := NewBamReader(bytes.NewReader(data), BamReaderOptions{ReadName: true, ReadCigar: true})
  if err != nil {
    t.Fatal(err)
  }
  blocks := []BamBlock{}
  for r := range reader.ReadSingleEnd() {
    if r.Error != nil {
      t.Fatal(r.Error)
    }
    blocks = append(blocks, r.Block)
  }
  if len(blocks) != 2 {
    t.Fatalf("expected 2 alignment blocks, got %d", len(blocks))
  }
  if blocks[0].Position != 100 || blocks[0].ReadName != "r1" || blocks[0].MapQ != 30 {
    t.Errorf("invalid first block: %+v", blocks[0])
  }
  if blocks[0].Cigar.AlignedLength() != 50 {
    t.Errorf("first block has invalid alignment length `%d'", blocks[0].Cigar.AlignedLength())
  }
  // soft clipped bases do not count towards the alignment length
  if blocks[1].Cigar.AlignedLength() != 50 {
    t.Errorf("second block has invalid alignment length `%d'", blocks[1].Cigar.AlignedLength())
  }
  if blocks[1].Cigar.String() != "5S20M10N20M" {
    t.Errorf("second block has invalid cigar string `%s'", blocks[1].Cigar)
  }
  if !blocks[1].Flag.ReverseStrand() {
    t.Error("second block should be on the reverse strand")
  }

  // check simplified reads
  reader, err = NewBamReader(bytes.NewReader(data))
  if err != nil {
    t.Fatal(err)
  }
  result := []Read{}
  for read := range reader.ReadSimple(false, false) {
    if read.Error != nil {
      t.Fatal(read.Error)
    }
    result = append(result, read)
  }
  if len(result) != 2 {
    t.Fatalf("expected 2 reads, got %d", len(result))
  }
  if result[0].Seqname != "chr1" || result[0].Range.From != 100 || result[0].Range.To != 150 ||
     result[0].Strand != '+' || result[0].MapQ != 30 || result[0].PairedEnd {
    t.Errorf("invalid first read: %v", result[0])
  }
  if result[1].Range.From != 300 || result[1].Range.To != 350 || result[1].Strand != '-' {
    t.Errorf("invalid second read: %v", result[1])
  }
}

func TestBamReadPairedEnd(t *testing.T) {

  genome := NewGenome([]string{"chr1"}, []int{10000})

  reads := []bamTestRead{
    // mates are joined by read name
    {RefID: 0, Pos: 300, Name: "p1", Flag: 1|2|16|128, MapQ: 20,
      Cigar: []uint32{50<<4 | 0}},
    {RefID: 0, Pos: 100, Name: "p1", Flag: 1|2|64, MapQ: 30,
      Cigar: []uint32{50<<4 | 0}} }

  data := bamTestCompress(bamTestPayload(genome, reads))

  reader, err := NewBamReader(bytes.NewReader(data))
  if err != nil {
    t.Fatal(err)
  }
  pairs := []BamReaderType2{}
  for r := range reader.ReadPairedEnd() {
    if r.Error != nil {
      t.Fatal(r.Error)
    }
    pairs = append(pairs, r)
  }
  if len(pairs) != 1 {
    t.Fatalf("expected 1 pair, got %d", len(pairs))
  }
  if pairs[0].Block1.Position != 100 || pairs[0].Block2.Position != 300 {
    t.Errorf("mates are not ordered by position: %d, %d", pairs[0].Block1.Position, pairs[0].Block2.Position)
  }

  // joined reads cover the full template
  reader, err = NewBamReader(bytes.NewReader(data))
  if err != nil {
    t.Fatal(err)
  }
  result := []Read{}
  for read := range reader.ReadSimple(true, false) {
    if read.Error != nil {
      t.Fatal(read.Error)
    }
    result = append(result, read)
  }
  if len(result) != 1 {
    t.Fatalf("expected 1 joined read, got %d", len(result))
  }
  if result[0].Range.From != 100 || result[0].Range.To != 350 {
    t.Errorf("joined read has invalid range %v", result[0].Range)
  }
  if result[0].Strand != '*' || !result[0].PairedEnd || result[0].MapQ != 20 {
    t.Errorf("invalid joined read: %v", result[0])
  }

  // with strand specific sequencing the strand is determined by the
  // second mate in sequencing order
  reader, err = NewBamReader(bytes.NewReader(data))
  if err != nil {
    t.Fatal(err)
  }
  for read := range reader.ReadSimple(true, true) {
    if read.Error != nil {
      t.Fatal(read.Error)
    }
    if read.Strand != '-' {
      t.Errorf("expected strand `-', got `%c'", read.Strand)
    }
  }
}

/* error handling
 * -------------------------------------------------------------------------- */

func TestBamBadMagic(t *testing.T) {

  genome  := NewGenome([]string{"chr1"}, []int{1000})
  payload := bamTestPayload(genome, nil)
  // corrupt the magic number
  payload[0] = 'X'

  if _, err := NewBamReader(bytes.NewReader(bamTestCompress(payload))); err == nil {
    t.Fatal("expected an error for an invalid magic number")
  } else {
    if !errors.Is(err, ErrBadMagic) {
      t.Errorf("expected a bad magic error, got: %v", err)
    }
  }
}

func TestBamTruncated(t *testing.T) {

  genome := NewGenome([]string{"chr1"}, []int{10000})

  reads := []bamTestRead{
    {RefID: 0, Pos: 100, Name: "r1", Flag: 0, MapQ: 30, Cigar: []uint32{50<<4 | 0}},
    {RefID: 0, Pos: 200, Name: "r2", Flag: 0, MapQ: 30, Cigar: []uint32{50<<4 | 0}} }

  payload := bamTestPayload(genome, reads)
  // cut the payload inside the second alignment block
  payload = payload[0:len(payload)-10]

  reader, err := NewBamReader(bytes.NewReader(bamTestCompress(payload)))
  if err != nil {
    t.Fatal(err)
  }
  result := []BamReaderType1{}
  for r := range reader.ReadSingleEnd() {
    result = append(result, r)
  }
  if len(result) != 2 {
    t.Fatalf("expected 2 stream elements, got %d", len(result))
  }
  if result[0].Error != nil {
    t.Fatalf("first block should be intact: %v", result[0].Error)
  }
  if result[1].Error == nil {
    t.Fatal("expected an in-stream error for the truncated block")
  }
  if !errors.Is(result[1].Error, ErrTruncatedData) {
    t.Errorf("expected a truncated data error, got: %v", result[1].Error)
  }
}

/* -------------------------------------------------------------------------- */

func TestBgzfExtra(t *testing.T) {

  // assemble a gzip member carrying the bgzf extra field
  data   := bamTestPayload(NewGenome([]string{"chr1"}, []int{1000}), nil)
  buffer := bytes.Buffer{}
  writer := gzip.NewWriter(&buffer)
  writer.Header.Extra = []byte{66, 67, 2, 0, 0xff, 0x01}
  writer.Write(data)
  writer.Close()

  reader, err := NewBgzfReader(bytes.NewReader(buffer.Bytes()))
  if err != nil {
    t.Fatal(err)
  }
  extra, err := reader.GetExtra()
  if err != nil {
    t.Fatal(err)
  }
  if extra.SI1 != 66 || extra.SI2 != 67 || extra.SLen != 2 || extra.BSize != 0x01ff {
    t.Errorf("invalid bgzf extra field: %+v", extra)
  }
}
