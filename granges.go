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

import "bytes"
import "fmt"

/* -------------------------------------------------------------------------- */

// Container for genomic ranges. Each range is described by its chromosome
// name, a half-open interval and an optional strand ('+', '-', or '*' if
// the strand is irrelevant).
type GRanges struct {
  Seqnames []string
  Ranges   []Range
  Strand   []byte
}

// A single row of a GRanges object.
type GRangesRow struct {
  Seqname string
  Range   Range
  Strand  byte
}

/* constructors
 * -------------------------------------------------------------------------- */

func NewGRanges(seqnames []string, from, to []int, strand []byte) GRanges {
  n := len(seqnames)
  if len(from) != n || len(to) != n {
    panic("NewGRanges(): invalid arguments")
  }
  if len(strand) == 0 {
    strand = make([]byte, n)
    for i := 0; i < n; i++ {
      strand[i] = '*'
    }
  }
  if len(strand) != n {
    panic("NewGRanges(): invalid arguments")
  }
  ranges := make([]Range, n)
  for i := 0; i < n; i++ {
    ranges[i] = NewRange(from[i], to[i])
  }
  return GRanges{seqnames, ranges, strand}
}

func NewEmptyGRanges(n int) GRanges {
  seqnames := make([]string, n)
  ranges   := make([]Range,  n)
  strand   := make([]byte,   n)
  for i := 0; i < n; i++ {
    strand[i] = '*'
  }
  return GRanges{seqnames, ranges, strand}
}

/* -------------------------------------------------------------------------- */

func (r GRanges) Length() int {
  return len(r.Ranges)
}

func (r GRanges) Row(i int) GRangesRow {
  return GRangesRow{r.Seqnames[i], r.Ranges[i], r.Strand[i]}
}

func (r GRanges) Append(s GRanges) GRanges {
  result := GRanges{}
  result.Seqnames = append(append([]string{}, r.Seqnames...), s.Seqnames...)
  result.Ranges   = append(append([]Range {}, r.Ranges  ...), s.Ranges  ...)
  result.Strand   = append(append([]byte  {}, r.Strand  ...), s.Strand  ...)
  return result
}

func (r GRanges) Clone() GRanges {
  return r.Append(GRanges{})
}

// Remove the rows given by the indices in idx.
func (r GRanges) Remove(idx []int) GRanges {
  if len(idx) == 0 {
    return r.Clone()
  }
  m := make(map[int]bool)
  for _, i := range idx {
    m[i] = true
  }
  result := GRanges{}
  for i := 0; i < r.Length(); i++ {
    if m[i] {
      continue
    }
    result.Seqnames = append(result.Seqnames, r.Seqnames[i])
    result.Ranges   = append(result.Ranges,   r.Ranges  [i])
    result.Strand   = append(result.Strand,   r.Strand  [i])
  }
  return result
}

/* convert to string
 * -------------------------------------------------------------------------- */

func (r GRanges) String() string {
  var buffer bytes.Buffer

  buffer.WriteString(
    fmt.Sprintf("%10s %10s %10s %6s\n", "seqnames", "from", "to", "strand"))

  for i := 0; i < r.Length(); i++ {
    buffer.WriteString(
      fmt.Sprintf("%10s %10d %10d %6c\n",
        r.Seqnames[i],
        r.Ranges  [i].From,
        r.Ranges  [i].To,
        r.Strand  [i]))
  }
  return buffer.String()
}
