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
import   "encoding/binary"
import   "math"
import   "testing"

/* -------------------------------------------------------------------------- */

func TestBbiZoomRecord(t *testing.T) {

  record1 := BbiZoomRecord{
    ChromId   : 4,
    Start     : 100,
    End       : 500,
    Valid     : 400,
    Min       : -1.5,
    Max       : 10.0,
    Sum       : 120.0,
    SumSquares: 1300.0 }

  buffer := bytes.Buffer{}
  if err := record1.Write(&buffer, binary.LittleEndian); err != nil {
    t.Fatal(err)
  }
  if buffer.Len() != 32 {
    t.Fatalf("zoom record has invalid length `%d'", buffer.Len())
  }
  record2 := BbiZoomRecord{}
  if err := record2.Read(&buffer, binary.LittleEndian); err != nil {
    t.Fatal(err)
  }
  if record1 != record2 {
    t.Errorf("zoom record round trip failed: %+v != %+v", record1, record2)
  }
}

func TestBbiSummaryRecord(t *testing.T) {

  record := NewBbiSummaryRecord()

  t1 := NewBbiSummaryRecord()
  t1.ChromId = 0
  t1.From    = 0
  t1.To      = 100
  t1.BbiSummaryStatistics.Valid = 100
  t1.BbiSummaryStatistics.Min   = 1.0
  t1.BbiSummaryStatistics.Max   = 1.0
  t1.BbiSummaryStatistics.Sum   = 100.0

  t2 := NewBbiSummaryRecord()
  t2.ChromId = 0
  t2.From    = 200
  t2.To      = 300
  t2.BbiSummaryStatistics.Valid = 100
  t2.BbiSummaryStatistics.Min   = 2.0
  t2.BbiSummaryStatistics.Max   = 2.0
  t2.BbiSummaryStatistics.Sum   = 200.0

  record.AddRecord(t1)
  record.AddRecord(t2)

  if record.From != 0 || record.To != 300 {
    t.Errorf("summary record has invalid range [%d, %d)", record.From, record.To)
  }
  // the gap between both records is counted as zero values
  if record.Valid != 300 {
    t.Errorf("summary record has invalid count `%f'", record.Valid)
  }
  if record.Min != 0.0 || record.Max != 2.0 {
    t.Errorf("summary record has invalid min/max (%f, %f)", record.Min, record.Max)
  }
  if record.Sum != 300.0 {
    t.Errorf("summary record has invalid sum `%f'", record.Sum)
  }
}

/* -------------------------------------------------------------------------- */

func TestBbiRawBlockCodec(t *testing.T) {

  sequence := []float64{1.0, 2.0, 3.0, math.NaN(), 5.0, 6.0}
  binSize  := 10

  encoder, err := NewBbiRawBlockEncoder(1024, true, binary.LittleEndian)
  if err != nil {
    t.Fatal(err)
  }
  blocks := [][]byte{}
  for chunk := range encoder.Encode(7, sequence, binSize) {
    blocks = append(blocks, chunk.Block)
  }
  // the NaN value splits the sequence into two blocks
  if len(blocks) != 2 {
    t.Fatalf("expected 2 blocks, got %d", len(blocks))
  }
  values    := []float64{}
  positions := []int{}
  for _, block := range blocks {
    decoder, err := NewBbiRawBlockDecoder(block, binary.LittleEndian)
    if err != nil {
      t.Fatal(err)
    }
    if decoder.Header.Type != BbiTypeFixed {
      t.Fatalf("expected fixed step block, got type `%d'", decoder.Header.Type)
    }
    if decoder.Header.ChromId != 7 {
      t.Fatalf("block has invalid chromosome id `%d'", decoder.Header.ChromId)
    }
    for it := decoder.Decode(); it.Ok(); it.Next() {
      record := it.Get()
      if record.To - record.From != binSize {
        t.Fatalf("record has invalid span [%d, %d)", record.From, record.To)
      }
      values    = append(values,    record.Sum/float64(binSize))
      positions = append(positions, record.From)
    }
  }
  expectedValues    := []float64{1.0, 2.0, 3.0, 5.0, 6.0}
  expectedPositions := []int{0, 10, 20, 40, 50}
  if len(values) != len(expectedValues) {
    t.Fatalf("expected %d records, got %d", len(expectedValues), len(values))
  }
  for i := 0; i < len(values); i++ {
    if math.Abs(values[i]-expectedValues[i]) > 1e-6 {
      t.Errorf("record %d has invalid value: %f != %f", i, values[i], expectedValues[i])
    }
    if positions[i] != expectedPositions[i] {
      t.Errorf("record %d has invalid position: %d != %d", i, positions[i], expectedPositions[i])
    }
  }
}

func TestBbiVariableBlockCodec(t *testing.T) {

  sequence := []float64{0.0, 2.0, 0.0, math.NaN(), 5.0}
  binSize  := 10

  encoder, err := NewBbiRawBlockEncoder(1024, false, binary.LittleEndian)
  if err != nil {
    t.Fatal(err)
  }
  blocks := [][]byte{}
  for chunk := range encoder.Encode(0, sequence, binSize) {
    blocks = append(blocks, chunk.Block)
  }
  if len(blocks) != 1 {
    t.Fatalf("expected 1 block, got %d", len(blocks))
  }
  decoder, err := NewBbiRawBlockDecoder(blocks[0], binary.LittleEndian)
  if err != nil {
    t.Fatal(err)
  }
  if decoder.Header.Type != BbiTypeVariable {
    t.Fatalf("expected variable step block, got type `%d'", decoder.Header.Type)
  }
  records := []*BbiBlockDecoderType{}
  for it := decoder.Decode(); it.Ok(); it.Next() {
    r := *it.Get()
    records = append(records, &r)
  }
  if len(records) != 2 {
    t.Fatalf("expected 2 records, got %d", len(records))
  }
  if records[0].From != 10 || records[0].Sum != 2.0*float64(binSize) {
    t.Errorf("first record is invalid: %+v", records[0])
  }
  if records[1].From != 40 || records[1].Sum != 5.0*float64(binSize) {
    t.Errorf("second record is invalid: %+v", records[1])
  }
}

/* -------------------------------------------------------------------------- */

func buildTestLeaf(chromId, from, to int) *RVertex {
  v := new(RVertex)
  v.IsLeaf      = 1
  v.NChildren   = 1
  v.ChrIdxStart = []uint32{uint32(chromId)}
  v.ChrIdxEnd   = []uint32{uint32(chromId)}
  v.BaseStart   = []uint32{uint32(from)}
  v.BaseEnd     = []uint32{uint32(to)}
  v.DataOffset  = []uint64{0}
  v.Sizes       = []uint64{0}
  return v
}

func TestRTreeCompleteness(t *testing.T) {

  // non-overlapping leaves on two chromosomes
  leaves := []*RVertex{}
  for i := 0; i < 100; i++ {
    leaves = append(leaves, buildTestLeaf(0, i*1000, (i+1)*1000))
  }
  for i := 0; i < 50; i++ {
    leaves = append(leaves, buildTestLeaf(1, i*1000, (i+1)*1000))
  }
  tree := NewRTree()
  tree.BlockSize = 4
  if err := tree.BuildTree(leaves); err != nil {
    t.Fatal(err)
  }
  queries := [][3]int{
    {0,      0,   1000},
    {0,    500,   1500},
    {0,      0, 100000},
    {0,  99000, 100500},
    {1,      0,  50000},
    {1,  12345,  23456},
    {0, 100000, 200000},
    {1,  50000,  60000} }

  for _, query := range queries {
    chromIx := query[0]
    from    := query[1]
    to      := query[2]
    // collect result from the tree traversal
    result := map[[2]uint32]int{}
    for traverser := NewRTreeTraverser(tree, chromIx, from, to); traverser.Ok(); traverser.Next() {
      r := traverser.Get()
      k := [2]uint32{r.Vertex.ChrIdxStart[r.Idx], r.Vertex.BaseStart[r.Idx]}
      result[k]++
    }
    // compare against brute force
    n := 0
    for _, leaf := range leaves {
      if int(leaf.ChrIdxStart[0]) != chromIx {
        continue
      }
      if int(leaf.BaseEnd[0]) <= from || int(leaf.BaseStart[0]) >= to {
        continue
      }
      n++
      k := [2]uint32{leaf.ChrIdxStart[0], leaf.BaseStart[0]}
      if result[k] != 1 {
        t.Errorf("query (%d, %d, %d): leaf [%d, %d) returned %d times",
          chromIx, from, to, leaf.BaseStart[0], leaf.BaseEnd[0], result[k])
      }
    }
    if len(result) != n {
      t.Errorf("query (%d, %d, %d): expected %d leaves, got %d", chromIx, from, to, n, len(result))
    }
  }
}

/* -------------------------------------------------------------------------- */

func TestBigWigMonotoneOffsets(t *testing.T) {

  genome := NewGenome([]string{"chr1"}, []int{1000000})

  seq := make([]float64, 10000)
  for i := 0; i < len(seq); i++ {
    seq[i] = float64(i % 7)
  }
  filename := writeTestBigWig(t, [][]float64{seq}, genome, 100,
    BigWigParameters{BlockSize: 8, ItemsPerSlot: 128})

  reader, err := OpenBigWigFile(filename)
  if err != nil {
    t.Fatal(err)
  }
  defer reader.Close()

  offset := uint64(0)
  count  := 0
  for traverser := NewRTreeTraverser(&reader.Bwf.Index, 0, 0, 1000000); traverser.Ok(); traverser.Next() {
    r := traverser.Get()
    if r.Vertex.DataOffset[r.Idx] <= offset {
      t.Fatalf("block offsets are not strictly increasing: %d <= %d", r.Vertex.DataOffset[r.Idx], offset)
    }
    offset = r.Vertex.DataOffset[r.Idx]
    count++
  }
  if count == 0 {
    t.Fatal("index traversal returned no blocks")
  }
  if uint64(count) != reader.Bwf.Header.NBlocks {
    t.Errorf("index returned %d blocks, but the header records %d", count, reader.Bwf.Header.NBlocks)
  }
}
