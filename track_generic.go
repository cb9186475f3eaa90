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
import "math"
import "sort"

/* -------------------------------------------------------------------------- */

// Generic operations on read-only tracks.
type GenericTrack struct {
  Track
}

// Generic operations on mutable tracks.
type GenericMutableTrack struct {
  MutableTrack
}

/* -------------------------------------------------------------------------- */

func (track GenericTrack) Reduce(f func(string, int, float64, float64) float64, x0 float64) map[string]float64 {
  result  := make(map[string]float64)
  binSize := track.GetBinSize()

  for _, name := range track.GetSeqNames() {
    sequence, err := track.GetSequence(name)
    if err != nil {
      continue
    }
    if sequence.NBins() == 0 {
      continue
    }
    tmp := f(name, 0, x0, sequence.AtBin(0))

    for i := 1; i < sequence.NBins(); i++ {
      tmp = f(name, i*binSize, tmp, sequence.AtBin(i))
    }
    result[name] = tmp
  }
  return result
}

func (track GenericTrack) Map(f func(string, int, float64)) error {
  binSize := track.GetBinSize()

  for _, name := range track.GetSeqNames() {
    sequence, err := track.GetSequence(name)
    if err != nil {
      return err
    }
    for i := 0; i < sequence.NBins(); i++ {
      f(name, i*binSize, sequence.AtBin(i))
    }
  }
  return nil
}

// Apply the function f to all windows of the given size. The window is
// centered at each bin and filled with NaN values at the sequence
// boundaries.
func (track GenericTrack) WindowMap(windowSize int, f func(string, int, []float64) float64) error {
  if windowSize <= 0 {
    return fmt.Errorf("invalid window size")
  }
  v       := make([]float64, windowSize)
  binSize := track.GetBinSize()

  for _, name := range track.GetSeqNames() {
    sequence, err := track.GetSequence(name)
    if err != nil {
      return err
    }
    for i := 0; i < sequence.NBins(); i++ {
      for j := 0; j < windowSize; j++ {
        k := i - windowSize/2 + j
        if k < 0 || k >= sequence.NBins() {
          v[j] = math.NaN()
        } else {
          v[j] = sequence.AtBin(k)
        }
      }
      f(name, i*binSize, v)
    }
  }
  return nil
}

/* -------------------------------------------------------------------------- */

// Add a single read to the track by incrementing the value of each bin
// that overlaps with the read. Single end reads are extended in 3'
// direction to have a length of d. This is the same as the macs2
// `extsize' parameter. Reads are not extended if d is zero.
// The function returns an error if the read's position is out of range.
func (track GenericMutableTrack) AddRead(read Read, d int) error {
  binSize  := track.GetBinSize()
  seq, err := track.GetMutableSequence(read.Seqname)
  if err != nil {
    return err
  }
  r, err := read.Extend(d)
  if err != nil {
    return err
  }
  if r.From/binSize >= seq.NBins() {
    return fmt.Errorf("read %v is out of range", read)
  }
  for j := r.From/binSize; j <= (r.To-1)/binSize; j++ {
    if j >= seq.NBins() {
      break
    }
    v := seq.AtBin(j)
    if math.IsNaN(v) {
      v = 0.0
    }
    seq.SetBin(j, v + 1.0)
  }
  return nil
}

// Add a single read to the track by adding the fraction of overlap
// between the read and each bin.
func (track GenericMutableTrack) addReadMeanOverlap(read Read, d int) error {
  binSize  := track.GetBinSize()
  seq, err := track.GetMutableSequence(read.Seqname)
  if err != nil {
    return err
  }
  r, err := read.Extend(d)
  if err != nil {
    return err
  }
  if r.From/binSize >= seq.NBins() {
    return fmt.Errorf("read %v is out of range", read)
  }
  for j := r.From/binSize; j <= (r.To-1)/binSize; j++ {
    if j >= seq.NBins() {
      break
    }
    v := seq.AtBin(j)
    if math.IsNaN(v) {
      v = 0.0
    }
    jfrom := iMax(r.From, (j+0)*binSize)
    jto   := iMin(r.To  , (j+1)*binSize)
    seq.SetBin(j, v + float64(jto-jfrom)/float64(binSize))
  }
  return nil
}

// Add a single read to the track by adding the number of overlapping
// nucleotides between the read and each bin.
func (track GenericMutableTrack) addReadOverlap(read Read, d int) error {
  binSize  := track.GetBinSize()
  seq, err := track.GetMutableSequence(read.Seqname)
  if err != nil {
    return err
  }
  r, err := read.Extend(d)
  if err != nil {
    return err
  }
  if r.From/binSize >= seq.NBins() {
    return fmt.Errorf("read %v is out of range", read)
  }
  for j := r.From/binSize; j <= (r.To-1)/binSize; j++ {
    if j >= seq.NBins() {
      break
    }
    v := seq.AtBin(j)
    if math.IsNaN(v) {
      v = 0.0
    }
    jfrom := iMax(r.From, (j+0)*binSize)
    jto   := iMin(r.To  , (j+1)*binSize)
    seq.SetBin(j, v + float64(jto-jfrom))
  }
  return nil
}

// Add reads to the track. All single end reads are extended in 3'
// direction to have a length of d. If method is "default" or "simple",
// the value of each bin that overlaps the read is incremented. If method
// is "overlap", each bin that overlaps the read is incremented by the
// number of overlapping nucleotides. If method is "mean overlap", each
// bin that overlaps the read is incremented by the fraction of
// overlapping nucleotides within the bin. Returns the number of reads
// added to the track.
func (track GenericMutableTrack) AddReads(reads ReadChannel, d int, method string) int {
  n := 0
  switch method {
  case "", "simple", "default":
    for read := range reads {
      if read.Error != nil {
        continue
      }
      if err := track.AddRead(read, d); err == nil {
        n++
      }
    }
  case "mean overlap":
    for read := range reads {
      if read.Error != nil {
        continue
      }
      if err := track.addReadMeanOverlap(read, d); err == nil {
        n++
      }
    }
  case "overlap":
    for read := range reads {
      if read.Error != nil {
        continue
      }
      if err := track.addReadOverlap(read, d); err == nil {
        n++
      }
    }
  default:
    panic("invalid binning method")
  }
  return n
}

/* -------------------------------------------------------------------------- */

// Combine treatment and control from a ChIP-seq experiment into a single
// track. At each genomic location, the number of binned reads from the
// treatment experiment plus c1 is divided by the number of control reads
// plus c2, and the ratio is multiplied by c2/c1. The pseudocounts avoid
// division by zero and must be strictly positive. If logScale is true,
// the result is log2 transformed.
func (track GenericMutableTrack) Normalize(treatment, control Track, c1, c2 float64, logScale bool) error {
  if c1 <= 0.0 || c2 <= 0.0 {
    return fmt.Errorf("pseudocounts must be strictly positive")
  }
  for _, name := range track.GetSeqNames() {
    seq1, err := track.GetMutableSequence(name)
    if err != nil {
      return err
    }
    seq2, err := treatment.GetSequence(name)
    if err != nil {
      return err
    }
    seq3, err := control.GetSequence(name)
    if err != nil {
      continue
    }
    for i := 0; i < seq1.NBins(); i++ {
      value := (seq2.AtBin(i)+c1)/(seq3.AtBin(i)+c2)*c2/c1
      if logScale {
        value = math.Log2(value)
      }
      seq1.SetBin(i, value)
    }
  }
  return nil
}

// Apply the function f to all bins of the track and overwrite the bin
// with the result. If a source track is given, values are read from the
// source track, which must have the same bin size.
func (track GenericMutableTrack) Map(source Track, f func(string, int, float64) float64) error {
  if source == nil {
    source = track.MutableTrack
  }
  if track.GetBinSize() != source.GetBinSize() {
    return fmt.Errorf("bin sizes do not match")
  }
  binSize := track.GetBinSize()

  for _, name := range track.GetSeqNames() {
    seq1, err := track.GetMutableSequence(name)
    if err != nil {
      return err
    }
    seq2, err := source.GetSequence(name)
    if err != nil {
      return err
    }
    if seq1.NBins() != seq2.NBins() {
      return fmt.Errorf("sequence `%s' has invalid length (`%d' instead of `%d')",
        name, seq2.NBins(), seq1.NBins())
    }
    for i := 0; i < seq1.NBins(); i++ {
      seq1.SetBin(i, f(name, i*binSize, seq2.AtBin(i)))
    }
  }
  return nil
}

// Apply the function f to all bins of the given source tracks and store
// the result in this track. All tracks must have the same bin size.
func (track GenericMutableTrack) MapList(sources []Track, f func(string, int, []float64) float64) error {
  if len(sources) == 0 {
    return nil
  }
  binSize := track.GetBinSize()
  v       := make([]float64, len(sources))

  for _, t := range sources {
    if binSize != t.GetBinSize() {
      return fmt.Errorf("bin sizes do not match")
    }
  }
  for _, name := range track.GetSeqNames() {
    dst, err := track.GetMutableSequence(name)
    if err != nil {
      return err
    }
    sequences := []TrackSequence{}
    for k, t := range sources {
      if seq, err := t.GetSequence(name); err == nil {
        if seq.NBins() != dst.NBins() {
          return fmt.Errorf("sequence `%s' in track `%d' has invalid length (`%d' instead of `%d')",
            name, k, seq.NBins(), dst.NBins())
        }
        sequences = append(sequences, seq)
      }
    }
    // reduce length of v if some tracks are missing a sequence
    w := v[0:len(sequences)]
    // loop over sequence
    for i := 0; i < dst.NBins(); i++ {
      // copy values to local vector
      for j, seq := range sequences {
        w[j] = seq.AtBin(i)
      }
      // apply function
      dst.SetBin(i, f(name, i*binSize, w))
    }
  }
  return nil
}

// Smoothen track data with an adaptive window method. For each bin the
// smallest window size among windowSizes is selected which contains at
// least minCounts counts. If the minimum number of counts is not
// reached, the largest window size is selected.
func (track GenericMutableTrack) Smoothen(minCounts float64, windowSizes []int) error {
  if len(windowSizes) == 0 {
    return nil
  }
  // sort window sizes so that the smallest window size comes first
  sort.Ints(windowSizes)

  offset1 := divIntUp  (windowSizes[0]-1, 2)
  offset2 := divIntDown(windowSizes[0]-1, 2)
  // number of window sizes
  nw := len(windowSizes)

  for _, name := range track.GetSeqNames() {
    seq, err := track.GetMutableSequence(name)
    if err != nil {
      return err
    }
    nbins := seq.NBins()
    rst   := make([]float64, nbins)
    // loop over sequence
    for i := offset1; i < nbins-offset2; i++ {
      counts := math.Inf(-1)
      wsize  := -1
      for k := 0; counts < minCounts && k < nw; k++ {
        from := i - divIntUp  (windowSizes[k]-1, 2)
        to   := i + divIntDown(windowSizes[k]-1, 2)
        if from < 0 {
          to   = iMin(nbins-1, to-from)
          from = 0
        }
        if to >= nbins {
          from = iMax(0, from-(to-nbins+1))
          to   = nbins-1
        }
        counts = 0.0
        for j := from; j <= to; j++ {
          counts += seq.AtBin(j)
        }
        wsize = to-from+1
      }
      if wsize != -1 {
        rst[i] = counts/float64(wsize)
      }
    }
    for i := 0; i < nbins; i++ {
      seq.SetBin(i, rst[i])
    }
  }
  return nil
}
