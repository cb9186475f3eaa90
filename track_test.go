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

import   "math"
import   "testing"

/* -------------------------------------------------------------------------- */

func readsFromSlice(reads []Read) ReadChannel {
  channel := make(chan Read)
  go func() {
    defer close(channel)
    for _, read := range reads {
      channel <- read
    }
  }()
  return channel
}

/* -------------------------------------------------------------------------- */

func TestTrackAccess(t *testing.T) {

  genome := NewGenome([]string{"chrX"}, []int{10000})
  track  := AllocSimpleTrack("test", genome, 100)

  if err := track.Set("chrX", 100, 13.0); err != nil {
    t.Fatal(err)
  }
  if err := track.Add("chrX", 100, 10.0); err != nil {
    t.Fatal(err)
  }
  if v, err := track.At("chrX", 180); err != nil {
    t.Fatal(err)
  } else {
    if v != 23.0 {
      t.Errorf("expected value 23, got %f", v)
    }
  }
  if err := track.Set("chrX", 10100, 1.0); err == nil {
    t.Error("expected an out of range error")
  }
  if err := track.Set("chrY", 100, 1.0); err == nil {
    t.Error("expected an unknown sequence error")
  }
}

func TestTrackAddReads(t *testing.T) {

  genome := NewGenome([]string{"chr1"}, []int{1000})

  reads := []Read{
    {Seqname: "chr1", Range: NewRange( 98, 148), Strand: '+'},
    {Seqname: "chr1", Range: NewRange(173, 223), Strand: '+'},
    {Seqname: "chr1", Range: NewRange(  0,  33), Strand: '+'} }

  // simple binning: each overlapping bin is incremented
  track1 := AllocSimpleTrack("", genome, 100)
  n := (GenericMutableTrack{track1}).AddReads(readsFromSlice(reads), 0, "simple")
  if n != 3 {
    t.Fatalf("expected 3 reads, got %d", n)
  }
  if v, _ := track1.At("chr1",   0); v != 2.0 {
    t.Errorf("bin 0 has invalid value `%f'", v)
  }
  if v, _ := track1.At("chr1", 100); v != 2.0 {
    t.Errorf("bin 1 has invalid value `%f'", v)
  }
  if v, _ := track1.At("chr1", 200); v != 1.0 {
    t.Errorf("bin 2 has invalid value `%f'", v)
  }

  // mean overlap binning: each bin is incremented by the fraction of
  // overlapping nucleotides
  track2 := AllocSimpleTrack("", genome, 100)
  (GenericMutableTrack{track2}).AddReads(readsFromSlice(reads), 0, "mean overlap")
  if v, _ := track2.At("chr1", 0); math.Abs(v - (2.0+33.0)/100.0) > 1e-12 {
    t.Errorf("bin 0 has invalid value `%f'", v)
  }
  if v, _ := track2.At("chr1", 100); math.Abs(v - (48.0+27.0)/100.0) > 1e-12 {
    t.Errorf("bin 1 has invalid value `%f'", v)
  }
  if v, _ := track2.At("chr1", 200); math.Abs(v - 23.0/100.0) > 1e-12 {
    t.Errorf("bin 2 has invalid value `%f'", v)
  }
}

func TestTrackAddReadsExtend(t *testing.T) {

  genome := NewGenome([]string{"chr1"}, []int{1000})
  track  := AllocSimpleTrack("", genome, 100)

  reads := []Read{
    {Seqname: "chr1", Range: NewRange(100, 150), Strand: '+'},
    {Seqname: "chr1", Range: NewRange(850, 900), Strand: '-'} }

  // extend reads to a fragment length of 200
  (GenericMutableTrack{track}).AddReads(readsFromSlice(reads), 200, "simple")

  // the forward read covers [100, 300)
  for _, p := range []int{100, 200} {
    if v, _ := track.At("chr1", p); v != 1.0 {
      t.Errorf("position %d has invalid value `%f'", p, v)
    }
  }
  // the reverse read covers [700, 900)
  for _, p := range []int{700, 800} {
    if v, _ := track.At("chr1", p); v != 1.0 {
      t.Errorf("position %d has invalid value `%f'", p, v)
    }
  }
  if v, _ := track.At("chr1", 300); v != 0.0 {
    t.Errorf("position 300 has invalid value `%f'", v)
  }
}

// Coverage is linear: the coverage of two disjoint read sets equals the
// sum of the individual coverages.
func TestTrackCoverageLinearity(t *testing.T) {

  genome := NewGenome([]string{"chr1"}, []int{10000})

  readsA := []Read{}
  readsB := []Read{}
  for i := 0; i < 50; i++ {
    readsA = append(readsA, Read{Seqname: "chr1", Range: NewRange(i*100, i*100+50), Strand: '+'})
    readsB = append(readsB, Read{Seqname: "chr1", Range: NewRange(i*150+25, i*150+75), Strand: '+'})
  }
  trackA := AllocSimpleTrack("", genome, 10)
  trackB := AllocSimpleTrack("", genome, 10)
  trackC := AllocSimpleTrack("", genome, 10)

  (GenericMutableTrack{trackA}).AddReads(readsFromSlice(readsA), 0, "simple")
  (GenericMutableTrack{trackB}).AddReads(readsFromSlice(readsB), 0, "simple")
  (GenericMutableTrack{trackC}).AddReads(readsFromSlice(append(append([]Read{}, readsA...), readsB...)), 0, "simple")

  seqA, _ := trackA.GetSequence("chr1")
  seqB, _ := trackB.GetSequence("chr1")
  seqC, _ := trackC.GetSequence("chr1")

  for i := 0; i < seqC.NBins(); i++ {
    if seqC.AtBin(i) != seqA.AtBin(i)+seqB.AtBin(i) {
      t.Fatalf("coverage is not linear at bin %d: %f != %f + %f",
        i, seqC.AtBin(i), seqA.AtBin(i), seqB.AtBin(i))
    }
  }
}

func TestTrackNormalize(t *testing.T) {

  genome := NewGenome([]string{"chr1"}, []int{400})

  track1 := AllocSimpleTrack("", genome, 100)
  track2 := AllocSimpleTrack("", genome, 100)

  track1.Data["chr1"] = []float64{3.0, 1.0, 0.0, 7.0}
  track2.Data["chr1"] = []float64{1.0, 1.0, 0.0, 3.0}

  if err := (GenericMutableTrack{track1}).Normalize(track1, track2, 1.0, 1.0, true); err != nil {
    t.Fatal(err)
  }
  // log2((x+1)/(y+1))
  expected := []float64{1.0, 0.0, 0.0, 1.0}
  for i, v := range expected {
    if u, _ := track1.At("chr1", i*100); math.Abs(u-v) > 1e-12 {
      t.Errorf("bin %d has invalid value: %f != %f", i, u, v)
    }
  }
  // pseudocounts must be strictly positive
  if err := (GenericMutableTrack{track1}).Normalize(track1, track2, 0.0, 1.0, true); err == nil {
    t.Error("expected an error for zero pseudocounts")
  }
}

func TestTrackMapList(t *testing.T) {

  genome := NewGenome([]string{"chr1"}, []int{300})

  track1 := AllocSimpleTrack("", genome, 100)
  track2 := AllocSimpleTrack("", genome, 100)
  track3 := AllocSimpleTrack("", genome, 100)

  track1.Data["chr1"] = []float64{1.0, 2.0, 3.0}
  track2.Data["chr1"] = []float64{4.0, 5.0, 6.0}

  err := (GenericMutableTrack{track3}).MapList([]Track{track1, track2}, func(name string, position int, v []float64) float64 {
    return v[0] + v[1]
  })
  if err != nil {
    t.Fatal(err)
  }
  expected := []float64{5.0, 7.0, 9.0}
  for i, v := range expected {
    if u, _ := track3.At("chr1", i*100); u != v {
      t.Errorf("bin %d has invalid value: %f != %f", i, u, v)
    }
  }
}

func TestTrackSmoothen(t *testing.T) {

  genome := NewGenome([]string{"chr1"}, []int{1000})
  track  := AllocSimpleTrack("", genome, 100)

  track.Data["chr1"] = []float64{0, 0, 0, 0, 10, 0, 0, 0, 0, 0}

  if err := (GenericMutableTrack{track}).Smoothen(10.0, []int{1, 3}); err != nil {
    t.Fatal(err)
  }
  // the peak bin reaches the minimum count within a window of one bin and
  // keeps its value; the bin next to it is averaged over three bins
  if v, _ := track.At("chr1", 400); v != 10.0 {
    t.Errorf("peak bin has invalid value `%f'", v)
  }
  if v, _ := track.At("chr1", 300); math.Abs(v-10.0/3.0) > 1e-12 {
    t.Errorf("bin next to peak has invalid value `%f'", v)
  }
}
