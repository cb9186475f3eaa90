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

import "fmt"

/* -------------------------------------------------------------------------- */

// A single aligned read. For joined paired-end reads the range covers the
// full template from the leftmost to the rightmost aligned position.
type Read struct {
  Seqname   string
  Range     Range
  Strand    byte
  MapQ      int
  Duplicate bool
  PairedEnd bool
  Error     error
}

// Channel of reads as produced by the BAM reader and consumed by the
// coverage engine. An error is delivered in-band as the last element.
type ReadChannel <- chan Read

/* -------------------------------------------------------------------------- */

func (read Read) String() string {
  return fmt.Sprintf("(seqname=%s, range=%v, strand=%c, mapq=%d, duplicate=%t, paired-end=%t)",
    read.Seqname, read.Range, read.Strand, read.MapQ, read.Duplicate, read.PairedEnd)
}

// Extend single-end reads in 3' direction to a length of d. Reads are not
// extended if d is zero or if the read is a joined paired-end fragment.
// The strand must be known for the extension to be well defined.
func (read Read) Extend(d int) (Range, error) {
  from := read.Range.From
  to   := read.Range.To

  if d > 0 && !read.PairedEnd {
    if read.Strand == '+' {
      to = from + d
    } else
    if read.Strand == '-' {
      from = to - d
      if from < 0 {
        from = 0
      }
    } else {
      return Range{}, fmt.Errorf("strand information is missing for read `%v'", read)
    }
  }
  return NewRange(from, to), nil
}
