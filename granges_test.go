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

import   "testing"

/* -------------------------------------------------------------------------- */

func TestGRanges(t *testing.T) {

  granges := NewGRanges(
    []string{"chr1", "chr1", "chr2"},
    []int   {100, 300, 0},
    []int   {200, 400, 50},
    []byte  {'+', '-', '*'})

  if granges.Length() != 3 {
    t.Fatalf("expected 3 ranges, got %d", granges.Length())
  }
  row := granges.Row(1)
  if row.Seqname != "chr1" || row.Range.From != 300 || row.Range.To != 400 || row.Strand != '-' {
    t.Errorf("invalid row: %+v", row)
  }
  appended := granges.Append(NewGRanges([]string{"chr3"}, []int{0}, []int{10}, nil))
  if appended.Length() != 4 {
    t.Fatalf("expected 4 ranges after append, got %d", appended.Length())
  }
  if appended.Strand[3] != '*' {
    t.Errorf("expected default strand `*', got `%c'", appended.Strand[3])
  }
  removed := appended.Remove([]int{0, 2})
  if removed.Length() != 2 {
    t.Fatalf("expected 2 ranges after removal, got %d", removed.Length())
  }
  if removed.Seqnames[0] != "chr1" || removed.Ranges[0].From != 300 {
    t.Errorf("invalid range after removal: %+v", removed.Row(0))
  }
}

func TestTrackGetSlice(t *testing.T) {

  genome := NewGenome([]string{"chr1"}, []int{1000})
  track  := AllocSimpleTrack("", genome, 100)

  for i := 0; i < 10; i++ {
    track.Data["chr1"][i] = float64(i)
  }
  granges := NewGRanges([]string{"chr1"}, []int{200}, []int{500}, nil)

  slice, err := track.GetSlice(granges.Row(0))
  if err != nil {
    t.Fatal(err)
  }
  if len(slice) != 3 {
    t.Fatalf("expected 3 bins, got %d", len(slice))
  }
  for i := 0; i < 3; i++ {
    if slice[i] != float64(i+2) {
      t.Errorf("bin %d has invalid value `%f'", i, slice[i])
    }
  }
}
