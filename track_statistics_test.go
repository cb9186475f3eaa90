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

func generateTestReads(fraglen, readLength, n int) ReadChannel {
  channel := make(chan Read)
  go func() {
    defer close(channel)
    for i := 0; i < n; i++ {
      // quasi-uniform positions in [1000, 9000)
      p := 1000 + (i*7919) % 8000
      channel <- Read{
        Seqname: "chr1",
        Range  : NewRange(p, p+readLength),
        Strand : '+' }
      channel <- Read{
        Seqname: "chr1",
        Range  : NewRange(p+fraglen-readLength, p+fraglen),
        Strand : '-' }
    }
  }()
  return channel
}

func TestEstimateFragmentLength(t *testing.T) {

  genome     := NewGenome([]string{"chr1"}, []int{20000})
  fraglen    := 200
  readLength := 50

  estimate, x, y, n, err := EstimateFragmentLength(
    generateTestReads(fraglen, readLength, 10000), genome, 1000, 10, [2]int{-1, -1})
  if err != nil {
    t.Fatal(err)
  }
  if n != 20000 {
    t.Errorf("expected 20000 reads, got %d", n)
  }
  if len(x) != len(y) || len(x) == 0 {
    t.Fatal("invalid cross-correlation result")
  }
  if estimate < fraglen-10 || estimate > fraglen+10 {
    t.Errorf("expected fragment length estimate close to %d, got %d", fraglen, estimate)
  }
}

func TestEstimateFragmentLengthInsufficientReads(t *testing.T) {

  genome := NewGenome([]string{"chr1"}, []int{20000})

  _, _, _, _, err := EstimateFragmentLength(
    generateTestReads(200, 50, 100), genome, 1000, 10, [2]int{-1, -1})
  if err == nil {
    t.Error("expected an error for an insufficient number of reads")
  }
}

/* -------------------------------------------------------------------------- */

func TestTrackCrosscorrelation(t *testing.T) {

  genome := NewGenome([]string{"chr1"}, []int{10000})

  track1 := AllocSimpleTrack("", genome, 10)
  track2 := AllocSimpleTrack("", genome, 10)

  // identical tracks with a shift of 5 bins (50 bps)
  for i := 0; i < 995; i++ {
    v := float64(i % 17)
    track1.Data["chr1"][i]   = v
    track2.Data["chr1"][i+5] = v
  }
  x, y, err := TrackCrosscorrelation(track1, track2, 0, 200, true)
  if err != nil {
    t.Fatal(err)
  }
  // find the delay with maximal correlation
  kmax := 0
  for k := 1; k < len(y); k++ {
    if y[k] > y[kmax] {
      kmax = k
    }
  }
  if x[kmax] != 50 {
    t.Errorf("expected maximal correlation at delay 50, got %d", x[kmax])
  }
  if math.Abs(y[kmax] - 1.0) > 5e-2 {
    t.Errorf("expected correlation close to one, got %f", y[kmax])
  }
}
