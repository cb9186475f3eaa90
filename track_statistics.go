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

/* -------------------------------------------------------------------------- */

// Function for summarizing bins, e.g. computing the mean value.
// Arguments are sum, sumSquares, min, max, and n.
type BinSummaryStatistics func(sum, sumSquares, min, max, n float64) float64

func BinMean(sum, sumSquares, min, max, n float64) float64 {
  return sum/n
}
func BinMax(sum, sumSquares, min, max, n float64) float64 {
  return max
}
func BinMin(sum, sumSquares, min, max, n float64) float64 {
  return min
}
func BinDiscreteMean(sum, sumSquares, min, max, n float64) float64 {
  return math.Floor(sum/n + 0.5)
}
func BinDiscreteMax(sum, sumSquares, min, max, n float64) float64 {
  return math.Floor(max)
}
func BinDiscreteMin(sum, sumSquares, min, max, n float64) float64 {
  return math.Floor(min)
}
func BinVariance(sum, sumSquares, min, max, n float64) float64 {
  return sumSquares/n - (sum/n)*(sum/n)
}

func BinSummaryStatisticsFromString(str string) (BinSummaryStatistics, error) {
  switch str {
  case "mean":
    return BinMean, nil
  case "max":
    return BinMax, nil
  case "min":
    return BinMin, nil
  case "discrete mean":
    return BinDiscreteMean, nil
  case "discrete max":
    return BinDiscreteMax, nil
  case "discrete min":
    return BinDiscreteMin, nil
  case "variance":
    return BinVariance, nil
  }
  return nil, fmt.Errorf("invalid bin summary statistics `%s'", str)
}

/* -------------------------------------------------------------------------- */

// Compute the cross-correlation between two tracks. The arguments from
// and to specify the range of the delay in basepairs. If normalize is
// true, the result is the Pearson correlation coefficient for each
// delay.
func TrackCrosscorrelation(track1, track2 Track, from, to int, normalize bool) (x []int, y []float64, err error) {
  if from < 0 || to < from {
    return nil, nil, fmt.Errorf("Crosscorrelation(): invalid parameters")
  }
  if track1.GetBinSize() != track2.GetBinSize() {
    return nil, nil, fmt.Errorf("Crosscorrelation(): track bin sizes do not match")
  }
  b := track1.GetBinSize()
  // check sequence lengths
  for _, name := range track1.GetSeqNames() {
    sequence1, err := track1.GetSequence(name)
    if err != nil {
      return nil, nil, err
    }
    sequence2, err := track2.GetSequence(name)
    if err != nil {
      continue
    }
    if sequence1.NBins() != sequence2.NBins() {
      return nil, nil, fmt.Errorf("Crosscorrelation(): track sequence lengths do not match")
    }
  }
  // number of points in the cross-correlation
  n := divIntUp(to-from, b)
  m := 0.0
  mean1     := 0.0
  mean2     := 0.0
  variance1 := 1.0
  variance2 := 1.0

  x = make([]int,     n)
  y = make([]float64, n)

  // compute delays used for indexing (i.e. normalized by binsize)
  for j, l := 0, from; l < to; j, l = j+1, l+b {
    x[j] = l/b
  }
  if normalize {
    // compute means and variances
    for _, name := range track1.GetSeqNames() {
      sequence1, err := track1.GetSequence(name)
      if err != nil {
        return nil, nil, err
      }
      sequence2, err := track2.GetSequence(name)
      if err != nil {
        continue
      }
      s1 := 0.0
      s2 := 0.0
      t1 := 0.0
      t2 := 0.0
      for i := 0; i < sequence1.NBins(); i++ {
        s1 += sequence1.AtBin(i)
        s2 += sequence2.AtBin(i)
        t1 += sequence1.AtBin(i)*sequence1.AtBin(i)
        t2 += sequence2.AtBin(i)*sequence2.AtBin(i)
      }
      k := float64(sequence1.NBins())
      mean1     = m/(m+k)*mean1     + 1/(m+k)*s1
      mean2     = m/(m+k)*mean2     + 1/(m+k)*s2
      variance1 = m/(m+k)*variance1 + 1/(m+k)*t1
      variance2 = m/(m+k)*variance2 + 1/(m+k)*t2
      m += k
    }
    variance1 -= mean1*mean1
    variance2 -= mean2*mean2
  }
  // compute cross-correlation
  m = 0.0
  for _, name := range track1.GetSeqNames() {
    sequence1, err := track1.GetSequence(name)
    if err != nil {
      return nil, nil, err
    }
    sequence2, err := track2.GetSequence(name)
    if err != nil {
      continue
    }
    s := make([]float64, n)
    for i := 0; i < sequence1.NBins(); i++ {
      for j := 0; j < n && i+x[j] < sequence1.NBins(); j++ {
        s[j] += (sequence1.AtBin(i)-mean1)*(sequence2.AtBin(i+x[j])-mean2)
      }
    }
    k := float64(sequence1.NBins())
    for j := 0; j < n; j++ {
      y[j] = m/(m+k)*y[j] + 1/(m+k)*s[j]
    }
    m += k
  }
  // normalize result and convert delays
  for j := 0; j < n; j++ {
    x[j] *= b
    y[j] /= math.Sqrt(variance1*variance2)
  }
  return x, y, nil
}

/* -------------------------------------------------------------------------- */

// Cross-correlate the 5' ends of reads on the forward and reverse
// strand. Returns the cross-correlation, the mean read length, and the
// number of reads used.
func CrosscorrelateReads(reads ReadChannel, genome Genome, maxDelay, binSize int) (x []int, y []float64, readLength, n int, err error) {
  track1 := AllocSimpleTrack("forward", genome, binSize)
  track2 := AllocSimpleTrack("reverse", genome, binSize)

  sumReadLength := 0

  for read := range reads {
    if read.Error != nil {
      return nil, nil, 0, n, read.Error
    }
    switch read.Strand {
    case '+':
      r := read
      r.Range.To   = r.Range.From+1
      if err := (GenericMutableTrack{track1}).AddRead(r, 0); err == nil {
        sumReadLength += read.Range.Length()
        n++
      }
    case '-':
      r := read
      r.Range.From = r.Range.To-1
      if err := (GenericMutableTrack{track2}).AddRead(r, 0); err == nil {
        sumReadLength += read.Range.Length()
        n++
      }
    }
  }
  if n == 0 {
    return nil, nil, 0, 0, fmt.Errorf("computing cross-correlation failed: no reads available")
  }
  readLength = sumReadLength/n

  x, y, err = TrackCrosscorrelation(track1, track2, 0, maxDelay, true)
  if err != nil {
    return nil, nil, 0, n, err
  }
  return x, y, readLength, n, nil
}

/* -------------------------------------------------------------------------- */

// Minimum number of reads required for estimating the fragment length.
const FraglenEstimateMinReads = 1000

// Estimate the mean fragment length of single-end reads by maximizing
// the cross-correlation between the coverage on the forward and reverse
// strand. The phantom peak at the read length is excluded by starting
// the search at twice the mean read length, unless fraglenRange
// specifies an explicit search interval.
func EstimateFragmentLength(reads ReadChannel, genome Genome, maxDelay, binSize int, fraglenRange [2]int) (fraglen int, x []int, y []float64, n int, err error) {

  x, y, readLength, n, err := CrosscorrelateReads(reads, genome, maxDelay, binSize)
  if err != nil {
    return 0, nil, nil, n, err
  }
  if n < FraglenEstimateMinReads {
    return 0, x, y, n, fmt.Errorf("estimating fragment length failed: insufficient number of reads (%d)", n)
  }
  from := 2*readLength
  to   := maxDelay

  if fraglenRange[0] != -1 {
    from = fraglenRange[0]
  }
  if fraglenRange[1] != -1 {
    to = fraglenRange[1]
  }
  if from/binSize >= len(x) {
    return 0, x, y, n, fmt.Errorf("estimating fragment length failed: search range is empty")
  }
  // find the position of the maximal cross-correlation; ties are broken
  // by the smallest delay
  i       := from/binSize
  max     := y[i]
  fraglen  = x[i]

  for ; i < len(x) && x[i] < to; i++ {
    if y[i] > max {
      max     = y[i]
      fraglen = x[i]
    }
  }
  return fraglen, x, y, n, nil
}
