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

import "log"

/* read filters
 * -------------------------------------------------------------------------- */

// treat all paired end reads as single end reads, this allows
// to extend/crop paired end reads when adding them to the track
// with AddReads()
func filterPairedAsSingleEnd(logger *log.Logger, veto bool, chanIn ReadChannel) ReadChannel {
  if veto == false {
    return chanIn
  }
  chanOut := make(chan Read)
  go func() {
    for r := range chanIn {
      r.PairedEnd = false; chanOut <- r
    }
    close(chanOut)
  }()
  return chanOut
}

func filterPairedEnd(logger *log.Logger, veto bool, chanIn ReadChannel) ReadChannel {
  if veto == false {
    return chanIn
  }
  chanOut := make(chan Read)
  go func() {
    n := 0
    m := 0
    for r := range chanIn {
      if r.Error != nil {
        chanOut <- r
        continue
      }
      if r.PairedEnd {
        chanOut <- r; m++
      }
      n++
    }
    if n != 0 {
      logger.Printf("Filtered out %d unpaired reads (%.2f%%)", n-m, 100.0*float64(n-m)/float64(n))
    }
    close(chanOut)
  }()
  return chanOut
}

func filterSingleEnd(logger *log.Logger, veto bool, chanIn ReadChannel) ReadChannel {
  if veto == false {
    return chanIn
  }
  chanOut := make(chan Read)
  go func() {
    n := 0
    m := 0
    for r := range chanIn {
      if r.Error != nil {
        chanOut <- r
        continue
      }
      if !r.PairedEnd {
        chanOut <- r; m++
      }
      n++
    }
    if n != 0 {
      logger.Printf("Filtered out %d paired reads (%.2f%%)", n-m, 100.0*float64(n-m)/float64(n))
    }
    close(chanOut)
  }()
  return chanOut
}

func filterDuplicates(logger *log.Logger, veto bool, chanIn ReadChannel) ReadChannel {
  if veto == false {
    return chanIn
  }
  chanOut := make(chan Read)
  go func() {
    n := 0
    m := 0
    for r := range chanIn {
      if r.Error != nil {
        chanOut <- r
        continue
      }
      if !r.Duplicate {
        chanOut <- r; m++
      }
      n++
    }
    if n != 0 {
      logger.Printf("Filtered out %d duplicates (%.2f%%)", n-m, 100.0*float64(n-m)/float64(n))
    }
    close(chanOut)
  }()
  return chanOut
}

func filterStrand(logger *log.Logger, strand byte, chanIn ReadChannel) ReadChannel {
  if strand == '*' {
    return chanIn
  }
  chanOut := make(chan Read)
  go func() {
    n := 0
    m := 0
    for r := range chanIn {
      if r.Error != nil {
        chanOut <- r
        continue
      }
      if r.Strand == strand {
        chanOut <- r; m++
      }
      n++
    }
    if n != 0 {
      logger.Printf("Filtered out %d reads not on strand %c (%.2f%%)", n-m, strand, 100.0*float64(n-m)/float64(n))
    }
    close(chanOut)
  }()
  return chanOut
}

func filterMapQ(logger *log.Logger, mapq int, chanIn ReadChannel) ReadChannel {
  if mapq <= 0 {
    return chanIn
  }
  chanOut := make(chan Read)
  go func() {
    n := 0
    m := 0
    for r := range chanIn {
      if r.Error != nil {
        chanOut <- r
        continue
      }
      if r.MapQ >= mapq {
        chanOut <- r; m++
      }
      n++
    }
    if n != 0 {
      logger.Printf("Filtered out %d reads with mapping quality lower than %d (%.2f%%)", n-m, mapq, 100.0*float64(n-m)/float64(n))
    }
    close(chanOut)
  }()
  return chanOut
}

func filterReadLength(logger *log.Logger, readLengths [2]int, chanIn ReadChannel) ReadChannel {
  if readLengths[0] == 0 && readLengths[1] == 0 {
    return chanIn
  }
  chanOut := make(chan Read)
  go func() {
    n := 0
    m := 0
    for r := range chanIn {
      if r.Error != nil {
        chanOut <- r
        continue
      }
      len := r.Range.To - r.Range.From
      if len >= readLengths[0] &&
        (len <= readLengths[1] || readLengths[1] == 0) {
        chanOut <- r; m++
      }
      n++
    }
    if n != 0 {
      logger.Printf("Filtered out %d reads with non-admissible length (%.2f%%)", n-m, 100.0*float64(n-m)/float64(n))
    }
    close(chanOut)
  }()
  return chanOut
}

func shiftReads(logger *log.Logger, shift [2]int, chanIn ReadChannel) ReadChannel {
  if shift[0] == 0 && shift[1] == 0 {
    return chanIn
  }
  chanOut := make(chan Read)
  go func() {
    for r := range chanIn {
      if r.Error != nil {
        chanOut <- r
        continue
      }
      if r.Strand == '+' {
        r.Range.From += shift[0]
        r.Range.To   += shift[0]
      } else
      if r.Strand == '-' {
        r.Range.From += shift[1]
        r.Range.To   += shift[1]
      }
      if r.Range.From < 0 {
        r.Range.To   -= r.Range.From
        r.Range.From  = 0
      }
      chanOut <- r
    }
    logger.Printf("Shifted reads (forward strand: %d, reverse strand: %d)",
      shift[0], shift[1])
    close(chanOut)
  }()
  return chanOut
}
