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

import   "fmt"
import   "log"
import   "io"
import   "math"
import   "sync"

import   "github.com/pbenner/threadpool"

/* -------------------------------------------------------------------------- */

type OptionLogger struct {
  Value *log.Logger
}

type OptionBinningMethod struct {
  Value string
}

type OptionBinSize struct {
  Value int
}

type OptionBinOverlap struct {
  Value int
}

type OptionNormalizeTrack struct {
  Value string
}

type OptionEffectiveGenomeSize struct {
  Value int
}

type OptionShiftReads struct {
  Value [2]int
}

type OptionPairedAsSingleEnd struct {
  Value bool
}

type OptionPairedEndStrandSpecific struct {
  Value bool
}

type OptionLogScale struct {
  Value bool
}

type OptionPseudocounts struct {
  Value [2]float64
}

type OptionEstimateFraglen struct {
  Value bool
}

type OptionFraglenRange struct {
  Value [2]int
}

type OptionFraglenBinSize struct {
  Value int
}

type OptionFilterChroms struct {
  Value []string
}

type OptionRemoveFilteredChroms struct {
  Value bool
}

type OptionFilterMapQ struct {
  Value int
}

type OptionFilterReadLengths struct {
  Value [2]int
}

type OptionFilterDuplicates struct {
  Value bool
}

type OptionFilterStrand struct {
  Value byte
}

type OptionFilterPairedEnd struct {
  Value bool
}

type OptionFilterSingleEnd struct {
  Value bool
}

type OptionSmoothenControl struct {
  Value bool
}

type OptionSmoothenSizes struct {
  Value []int
}

type OptionSmoothenMin struct {
  Value float64
}

type OptionSkipBrokenInputs struct {
  Value bool
}

type OptionThreads struct {
  Value int
}

/* -------------------------------------------------------------------------- */

type BamCoverageConfig struct {
  Logger                 *log.Logger
  BinningMethod           string
  BinSize                 int
  BinOverlap              int
  NormalizeTrack          string
  EffectiveGenomeSize     int
  ShiftReads           [2]int
  PairedAsSingleEnd       bool
  PairedEndStrandSpecific bool
  LogScale                bool
  Pseudocounts         [2]float64
  EstimateFraglen         bool
  FraglenRange         [2]int
  FraglenBinSize          int
  FilterChroms          []string
  RemoveFilteredChroms    bool
  FilterMapQ              int
  FilterReadLengths    [2]int
  FilterDuplicates        bool
  FilterStrand            byte
  FilterPairedEnd         bool
  FilterSingleEnd         bool
  SmoothenControl         bool
  SmoothenSizes         []int
  SmoothenMin             float64
  SkipBrokenInputs        bool
  Threads                 int
}

func BamCoverageDefaultConfig() BamCoverageConfig {
  config := BamCoverageConfig{}
  // set default values
  config.Logger                  = log.New(io.Discard, "", 0)
  config.BinningMethod           = "simple"
  config.BinSize                 = 10
  config.BinOverlap              = 0
  config.PairedAsSingleEnd       = false
  config.PairedEndStrandSpecific = false
  config.EstimateFraglen         = false
  config.FraglenRange            = [2]int{-1, -1}
  config.FraglenBinSize          = 10
  config.FilterReadLengths       = [2]int{0,0}
  config.FilterMapQ              = 0
  config.FilterDuplicates        = false
  config.FilterStrand            = '*'
  config.FilterPairedEnd         = false
  config.FilterSingleEnd         = false
  config.LogScale                = true
  config.Pseudocounts            = [2]float64{1.0, 1.0}
  config.SmoothenControl         = false
  config.SmoothenSizes           = []int{}
  config.SmoothenMin             = 20.0
  config.SkipBrokenInputs        = false
  config.Threads                 = 1
  return config
}

func (config *BamCoverageConfig) insertOption(option interface{}) error {
  switch opt := option.(type) {
  case OptionLogger:
    config.Logger = opt.Value
  case OptionBinningMethod:
    config.BinningMethod = opt.Value
  case OptionBinSize:
    config.BinSize = opt.Value
  case OptionBinOverlap:
    config.BinOverlap = opt.Value
  case OptionNormalizeTrack:
    config.NormalizeTrack = opt.Value
  case OptionEffectiveGenomeSize:
    config.EffectiveGenomeSize = opt.Value
  case OptionShiftReads:
    config.ShiftReads = opt.Value
  case OptionPairedAsSingleEnd:
    config.PairedAsSingleEnd = opt.Value
  case OptionPairedEndStrandSpecific:
    config.PairedEndStrandSpecific = opt.Value
  case OptionLogScale:
    config.LogScale = opt.Value
  case OptionPseudocounts:
    config.Pseudocounts = opt.Value
  case OptionEstimateFraglen:
    config.EstimateFraglen = opt.Value
  case OptionFraglenRange:
    config.FraglenRange = opt.Value
  case OptionFraglenBinSize:
    config.FraglenBinSize = opt.Value
  case OptionFilterChroms:
    config.FilterChroms = opt.Value
  case OptionRemoveFilteredChroms:
    config.RemoveFilteredChroms = opt.Value
  case OptionFilterMapQ:
    config.FilterMapQ = opt.Value
  case OptionFilterReadLengths:
    config.FilterReadLengths = opt.Value
  case OptionFilterDuplicates:
    config.FilterDuplicates = opt.Value
  case OptionFilterStrand:
    config.FilterStrand = opt.Value
  case OptionFilterPairedEnd:
    config.FilterPairedEnd = opt.Value
  case OptionFilterSingleEnd:
    config.FilterSingleEnd = opt.Value
  case OptionSmoothenControl:
    config.SmoothenControl = opt.Value
  case OptionSmoothenSizes:
    config.SmoothenSizes = opt.Value
  case OptionSmoothenMin:
    config.SmoothenMin = opt.Value
  case OptionSkipBrokenInputs:
    config.SkipBrokenInputs = opt.Value
  case OptionThreads:
    config.Threads = opt.Value
  default:
    return fmt.Errorf("BamCoverage(): invalid option: %v", opt)
  }
  return nil
}

/* -------------------------------------------------------------------------- */

type FraglenEstimate struct {
  Fraglen   int
  X       []int
  Y       []float64
  Error     error
}

// Estimation of the mean fragment length failed for the given file.
type FraglenEstimationError struct {
  Filename string
  Err      error
}

func (e FraglenEstimationError) Error() string {
  return fmt.Sprintf("estimating fragment length of `%s' failed: %v", e.Filename, e.Err)
}

func (e FraglenEstimationError) Unwrap() error {
  return e.Err
}

/* fragment length estimation
 * -------------------------------------------------------------------------- */

func estimateFraglen(config BamCoverageConfig, filename string, genome Genome) FraglenEstimate {
  var reads ReadChannel

  config.Logger.Printf("Reading tags from `%s'", filename)
  bam, err := OpenBamFile(filename, BamReaderOptions{})
  if err != nil {
    return FraglenEstimate{0, nil, nil, err}
  }
  defer bam.Close()

  reads = bam.ReadSimple(false, false)

  // first round of filtering
  reads = filterSingleEnd  (config.Logger, true, reads)
  reads = filterReadLength (config.Logger, config.FilterReadLengths, reads)
  reads = filterDuplicates (config.Logger, config.FilterDuplicates, reads)
  reads = filterMapQ       (config.Logger, config.FilterMapQ, reads)

  // estimate fragment length
  config.Logger.Printf("Estimating mean fragment length")
  if fraglen, x, y, n, err := EstimateFragmentLength(reads, genome, 2000, config.FraglenBinSize, config.FraglenRange); err != nil {
    if n == 0 {
      // do not report an error if no single-end reads were found
      return FraglenEstimate{0, x, y, nil}
    } else {
      return FraglenEstimate{0, x, y, FraglenEstimationError{filename, err}}
    }
  } else {
    config.Logger.Printf("Estimated mean fragment length: %d", fraglen)
    return FraglenEstimate{fraglen, x, y, nil}
  }
}

/* coverage accumulation
 * -------------------------------------------------------------------------- */

// Read all alignments of a single bam file, apply the configured
// filters, and add the reads to the given track. Returns the number of
// reads added.
func bamCoverageAddFile(config BamCoverageConfig, track MutableTrack, filename string, fraglen int) (int, error) {

  var reads ReadChannel

  bam, err := OpenBamFile(filename, BamReaderOptions{})
  if err != nil {
    return 0, err
  }
  defer bam.Close()

  reads = bam.ReadSimple(!config.PairedAsSingleEnd, config.PairedEndStrandSpecific)

  // first round of filtering
  reads = filterPairedEnd        (config.Logger, config.FilterPairedEnd, reads)
  reads = filterSingleEnd        (config.Logger, config.FilterSingleEnd, reads)
  reads = filterPairedAsSingleEnd(config.Logger, config.PairedAsSingleEnd, reads)
  reads = filterReadLength       (config.Logger, config.FilterReadLengths, reads)
  reads = filterDuplicates       (config.Logger, config.FilterDuplicates, reads)
  reads = filterMapQ             (config.Logger, config.FilterMapQ, reads)
  // second round of filtering
  reads = filterStrand           (config.Logger, config.FilterStrand, reads)
  reads = shiftReads             (config.Logger, config.ShiftReads, reads)

  n := (GenericMutableTrack{track}).AddReads(reads, fraglen, config.BinningMethod)

  return n, nil
}

// Accumulate the coverage of multiple bam files into a single track.
// If more than one thread is available, files are processed
// concurrently, each into a temporary track that is added to the result
// under a mutex.
func bamCoverageAddFiles(config BamCoverageConfig, track SimpleTrack, filenames []string, fraglen []int, genome Genome) (int, error) {

  n := 0

  if config.Threads <= 1 || len(filenames) <= 1 {
    for i, filename := range filenames {
      config.Logger.Printf("Reading tags from `%s'", filename)
      m, err := bamCoverageAddFile(config, track, filename, fraglen[i])
      if err != nil {
        if config.SkipBrokenInputs {
          config.Logger.Printf("Skipping `%s': %v", filename, err)
          continue
        }
        return n, err
      }
      n += m
    }
    return n, nil
  }
  pool  := threadpool.New(config.Threads, 100*config.Threads)
  group := pool.NewJobGroup()
  mutex := sync.Mutex{}

  err := pool.AddRangeJob(0, len(filenames), group, func(i int, pool threadpool.ThreadPool, erf func() error) error {
    config.Logger.Printf("Reading tags from `%s'", filenames[i])
    tmp := AllocSimpleTrack("", genome, config.BinSize)

    m, err := bamCoverageAddFile(config, tmp, filenames[i], fraglen[i])
    if err != nil {
      if config.SkipBrokenInputs {
        config.Logger.Printf("Skipping `%s': %v", filenames[i], err)
        return nil
      }
      return err
    }
    mutex.Lock()
    defer mutex.Unlock()
    n += m
    return (GenericMutableTrack{track}).Map(track, func(name string, position int, x float64) float64 {
      if seq, err := tmp.GetSequence(name); err != nil {
        return x
      } else {
        return x + seq.At(position)
      }
    })
  })
  if err != nil {
    return n, err
  }
  if err := pool.Wait(group); err != nil {
    return n, err
  }
  return n, nil
}

/* -------------------------------------------------------------------------- */

// Mean fragment length of the given estimates; used for rpgc
// normalization.
func meanFraglen(fraglen []int) float64 {
  sum := 0
  n   := 0
  for _, l := range fraglen {
    if l > 0 {
      sum += l
      n   ++
    }
  }
  if n == 0 {
    return 0.0
  }
  return float64(sum)/float64(n)
}

func bamCoverageNormalize(config BamCoverageConfig, track SimpleTrack, which string, nReads int, fraglen []int, pseudocount *float64) error {
  switch config.NormalizeTrack {
  case "":
  case "rpm", "cpm":
    config.Logger.Printf("Normalizing %s track (%s)", which, config.NormalizeTrack)
    c := float64(1000000)/float64(nReads)
    GenericMutableTrack{track}.Map(track, func(name string, i int, x float64) float64 {
      return c*x
    })
    // adapt pseudocounts!
    *pseudocount *= c
  case "rpkm":
    config.Logger.Printf("Normalizing %s track (rpkm)", which)
    c := float64(1000000)/(float64(nReads)*float64(config.BinSize))
    GenericMutableTrack{track}.Map(track, func(name string, i int, x float64) float64 {
      return c*x
    })
    // adapt pseudocounts!
    *pseudocount *= c
  case "rpgc":
    if config.EffectiveGenomeSize <= 0 {
      return fmt.Errorf("rpgc normalization requires the effective genome size")
    }
    l := meanFraglen(fraglen)
    if l == 0.0 {
      return fmt.Errorf("rpgc normalization requires fragment lengths")
    }
    config.Logger.Printf("Normalizing %s track (rpgc)", which)
    c := float64(config.EffectiveGenomeSize)/(float64(nReads)*l)
    GenericMutableTrack{track}.Map(track, func(name string, i int, x float64) float64 {
      return c*x
    })
    // adapt pseudocounts!
    *pseudocount *= c
  default:
    return fmt.Errorf("invalid normalization method `%s'", config.NormalizeTrack)
  }
  return nil
}

/* -------------------------------------------------------------------------- */

func bamCoverage(config BamCoverageConfig, filenamesTreatment, filenamesControl []string, fraglenTreatment, fraglenControl []int, genome Genome) (SimpleTrack, error) {

  // treatment data
  track1 := AllocSimpleTrack("treatment", genome, config.BinSize)

  // number of reads
  nTreatment, err := bamCoverageAddFiles(config, track1, filenamesTreatment, fraglenTreatment, genome)
  if err != nil {
    return SimpleTrack{}, err
  }
  if err := bamCoverageNormalize(config, track1, "treatment", nTreatment, fraglenTreatment, &config.Pseudocounts[0]); err != nil {
    return SimpleTrack{}, err
  }

  if len(filenamesControl) > 0 {
    // control data
    track2 := AllocSimpleTrack("control", genome, config.BinSize)

    nControl, err := bamCoverageAddFiles(config, track2, filenamesControl, fraglenControl, genome)
    if err != nil {
      return SimpleTrack{}, err
    }
    if err := bamCoverageNormalize(config, track2, "control", nControl, fraglenControl, &config.Pseudocounts[1]); err != nil {
      return SimpleTrack{}, err
    }
    if config.SmoothenControl {
      GenericMutableTrack{track2}.Smoothen(config.SmoothenMin, config.SmoothenSizes)
    }
    config.Logger.Printf("Combining treatment and control tracks")
    if err := (GenericMutableTrack{track1}).Normalize(track1, track2, config.Pseudocounts[0], config.Pseudocounts[1], config.LogScale); err != nil {
      return SimpleTrack{}, err
    }
  } else {
    // no control data
    if config.Pseudocounts[0] != 0.0 {
      config.Logger.Printf("Adding pseudocount `%f'", config.Pseudocounts[0])
      GenericMutableTrack{track1}.Map(track1, func(name string, i int, x float64) float64 { return x+config.Pseudocounts[0] })
    }
    if config.LogScale {
      config.Logger.Printf("Log-transforming data")
      GenericMutableTrack{track1}.Map(track1, func(name string, i int, x float64) float64 { return math.Log2(x) })
    }
  }
  if len(config.FilterChroms) != 0 {
    if config.RemoveFilteredChroms {
      config.Logger.Printf("Removing chromosomes `%v'", config.FilterChroms)
      track1.FilterGenome(func(name string, length int) bool {
        for _, chr := range config.FilterChroms {
          if name == chr {
            return false
          }
        }
        return true
      })
    } else {
      config.Logger.Printf("Removing all reads from `%v'", config.FilterChroms)
      for _, chr := range config.FilterChroms {
        if s, err := track1.GetMutableSequence(chr); err == nil {
          for i := 0; i < s.NBins(); i++ {
            s.SetBin(i, 0.0)
          }
        }
      }
    }
  }
  return track1, nil
}

/* -------------------------------------------------------------------------- */

// Compute the coverage of one or more treatment bam files, optionally
// normalized by a set of control bam files. The fragment length of each
// file may be provided as an argument; a negative value requests
// estimation by cross-correlation if OptionEstimateFraglen is set.
func BamCoverage(filenamesTreatment, filenamesControl []string, fraglenTreatment, fraglenControl []int, options ...interface{}) (SimpleTrack, []FraglenEstimate, []FraglenEstimate, error) {

  config := BamCoverageDefaultConfig()

  // parse options
  //////////////////////////////////////////////////////////////////////////////
  for _, option := range options {
    if err := config.insertOption(option); err != nil {
      return SimpleTrack{}, nil, nil, err
    }
  }

  // check fraglen arguments
  //////////////////////////////////////////////////////////////////////////////
  if len(fraglenTreatment) == 0 {
    fraglenTreatment = make([]int, len(filenamesTreatment))
    for i, _ := range fraglenTreatment {
      fraglenTreatment[i] = -1
    }
  }
  if len(fraglenControl) == 0 {
    fraglenControl = make([]int, len(filenamesControl))
    for i, _ := range fraglenControl {
      fraglenControl[i] = -1
    }
  }
  if len(fraglenTreatment) != len(filenamesTreatment) {
    return SimpleTrack{}, nil, nil, fmt.Errorf("number of provided treatment fragment lengths `%d' does not match number of treatment files `%d'",
      len(fraglenTreatment), len(filenamesTreatment))
  }
  if len(fraglenControl) != len(filenamesControl) {
    return SimpleTrack{}, nil, nil, fmt.Errorf("number of provided control fragment lengths `%d' does not match number of control files `%d'",
      len(fraglenControl), len(filenamesControl))
  }

  // read genome
  //////////////////////////////////////////////////////////////////////////////
  var genome Genome

  for _, filename := range append(append([]string{}, filenamesTreatment...), filenamesControl...) {
    g, err := BamImportGenome(filename); if err != nil {
      if config.SkipBrokenInputs {
        config.Logger.Printf("Skipping `%s': %v", filename, err)
        continue
      }
      return SimpleTrack{}, nil, nil, err
    }
    if genome.Length() == 0 {
      genome = g
    } else {
      if !genome.Equals(g) {
        return SimpleTrack{}, nil, nil, fmt.Errorf("bam genomes are not equal")
      }
    }
  }
  if genome.Length() == 0 {
    return SimpleTrack{}, nil, nil, fmt.Errorf("no valid input files")
  }

  treatmentFraglenEstimates := make([]FraglenEstimate, len(filenamesTreatment))
    controlFraglenEstimates := make([]FraglenEstimate, len(filenamesControl))

  if !config.EstimateFraglen {
    for i, _ := range fraglenTreatment {
      if fraglenTreatment[i] < 0 {
        // if no fragment length is provided and estimation is switched
        // off, then do not extend reads
        fraglenTreatment[i] = 0
      }
      treatmentFraglenEstimates[i].Fraglen = fraglenTreatment[i]
    }
    for i, _ := range fraglenControl {
      if fraglenControl[i] < 0 {
        fraglenControl[i] = 0
      }
      controlFraglenEstimates[i].Fraglen = fraglenControl[i]
    }
  } else {
    // fragment length estimation
    ////////////////////////////////////////////////////////////////////////////
    estimate := func(i int, filenames []string, fraglen []int, estimates []FraglenEstimate) error {
      if fraglen[i] >= 0 {
        estimates[i].Fraglen = fraglen[i]
        return nil
      }
      r := estimateFraglen(config, filenames[i], genome)
      estimates[i] = r
      if r.Error != nil {
        if config.SkipBrokenInputs {
          config.Logger.Printf("Skipping `%s': %v", filenames[i], r.Error)
          fraglen[i] = 0
          return nil
        }
        return r.Error
      }
      fraglen[i] = r.Fraglen
      return nil
    }
    if config.Threads > 1 {
      pool  := threadpool.New(config.Threads, 100*config.Threads)
      group := pool.NewJobGroup()
      pool.AddRangeJob(0, len(filenamesTreatment), group, func(i int, pool threadpool.ThreadPool, erf func() error) error {
        return estimate(i, filenamesTreatment, fraglenTreatment, treatmentFraglenEstimates)
      })
      pool.AddRangeJob(0, len(filenamesControl), group, func(i int, pool threadpool.ThreadPool, erf func() error) error {
        return estimate(i, filenamesControl, fraglenControl, controlFraglenEstimates)
      })
      if err := pool.Wait(group); err != nil {
        return SimpleTrack{}, treatmentFraglenEstimates, controlFraglenEstimates, err
      }
    } else {
      for i, _ := range filenamesTreatment {
        if err := estimate(i, filenamesTreatment, fraglenTreatment, treatmentFraglenEstimates); err != nil {
          return SimpleTrack{}, treatmentFraglenEstimates, controlFraglenEstimates, err
        }
      }
      for i, _ := range filenamesControl {
        if err := estimate(i, filenamesControl, fraglenControl, controlFraglenEstimates); err != nil {
          return SimpleTrack{}, treatmentFraglenEstimates, controlFraglenEstimates, err
        }
      }
    }
  }
  //////////////////////////////////////////////////////////////////////////////
  if result, err := bamCoverage(config, filenamesTreatment, filenamesControl, fraglenTreatment, fraglenControl, genome); err != nil {
    return SimpleTrack{}, treatmentFraglenEstimates, controlFraglenEstimates, err
  } else {
    return result, treatmentFraglenEstimates, controlFraglenEstimates, nil
  }
}
