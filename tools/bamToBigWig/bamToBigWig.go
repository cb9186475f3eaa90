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

package main

/* -------------------------------------------------------------------------- */

import   "errors"
import   "fmt"
import   "io"
import   "log"
import   "os"
import   "path/filepath"
import   "strconv"
import   "strings"

import   "github.com/pborman/getopt"
import . "github.com/pbenner/rustynetics"

import   "gonum.org/v1/plot"
import   "gonum.org/v1/plot/plotter"
import   "gonum.org/v1/plot/plotutil"
import   "gonum.org/v1/plot/vg"

/* -------------------------------------------------------------------------- */

type Config struct {
  Verbose                int
  BWZoomLevels         []int
  BinningMethod          string
  BinSize                int
  NormalizeTrack         string
  EffectiveGenomeSize    int
  ShiftReads          [2]int
  PairedAsSingleEnd      bool
  PairedEndStrandSpec    bool
  LogScale               bool
  Pseudocounts        [2]float64
  EstimateFraglen        bool
  FraglenRange        [2]int
  FraglenBinSize         int
  FilterChroms         []string
  RemoveChroms           bool
  FilterMapQ             int
  FilterReadLengths   [2]int
  FilterDuplicates       bool
  FilterStrand           byte
  FilterPairedEnd        bool
  FilterSingleEnd        bool
  SmoothenControl        bool
  SmoothenSizes        []int
  SmoothenMin            float64
  SkipBrokenInputs       bool
  Threads                int
  SaveFraglen            bool
  SaveCrossCorr          bool
  SaveCrossCorrPlot      bool
}

/* i/o
 * -------------------------------------------------------------------------- */

func PrintStderr(config Config, level int, format string, args ...interface{}) {
  if config.Verbose >= level {
    fmt.Fprintf(os.Stderr, format, args...)
  }
}

func exitOnError(err error) {
  if err == nil {
    return
  }
  fmt.Fprintf(os.Stderr, "%v\n", err)
  switch {
  case errors.Is(err, ErrUnsupportedVersion):
    os.Exit(3)
  case errors.Is(err, ErrBadMagic), errors.Is(err, ErrTruncatedData):
    os.Exit(2)
  default:
    os.Exit(1)
  }
}

/* utility
 * -------------------------------------------------------------------------- */

func parseFilename(filename string) (string, int) {
  if tmp := strings.Split(filename, ":"); len(tmp) == 2 {
    t, err := strconv.ParseInt(tmp[1], 10, 64)
    if err != nil {
      log.Fatal(err)
    }
    return tmp[0], int(t)
  } else
  if len(tmp) >= 2 {
    log.Fatalf("invalid input file description `%s'", filename)
  }
  return filename, -1
}

/* fragment length estimation
 * -------------------------------------------------------------------------- */

func saveFraglen(config Config, filename string, fraglen int) {
  basename := strings.TrimSuffix(filename, filepath.Ext(filename))
  filename  = fmt.Sprintf("%s.fraglen.txt", basename)

  f, err := os.Create(filename)
  if err != nil {
    log.Fatalf("opening `%s' failed: %v", filename, err)
  }
  defer f.Close()

  fmt.Fprintf(f, "%d\n", fraglen)

  PrintStderr(config, 1, "Wrote fragment length estimate to `%s'\n", filename)
}

func saveCrossCorr(config Config, filename string, x []int, y []float64) {
  basename := strings.TrimSuffix(filename, filepath.Ext(filename))
  filename  = fmt.Sprintf("%s.fraglen.table", basename)

  f, err := os.Create(filename)
  if err != nil {
    log.Fatalf("opening `%s' failed: %v", filename, err)
  }
  defer f.Close()

  for i := 0; i < len(x); i++ {
    fmt.Fprintf(f, "%d %f\n", x[i], y[i])
  }
  PrintStderr(config, 1, "Wrote crosscorrelation to `%s'\n", filename)
}

func saveCrossCorrPlot(config Config, filename string, x []int, y []float64) {
  basename := strings.TrimSuffix(filename, filepath.Ext(filename))
  filename  = fmt.Sprintf("%s.fraglen.pdf", basename)

  xy := make(plotter.XYs, len(x))
  for i := 0; i < len(x); i++ {
    xy[i].X = float64(x[i])+1
    xy[i].Y = y[i]
  }
  p := plot.New()
  p.Title.Text   = ""
  p.X.Label.Text = "shift"
  p.Y.Label.Text = "cross-correlation"
  p.X.Scale       = plot.LogScale{}
  p.X.Tick.Marker = plot.LogTicks{}

  if err := plotutil.AddLines(p, xy); err != nil {
    log.Fatal(err)
  }
  if err := p.Save(8*vg.Inch, 4*vg.Inch, filename); err != nil {
    log.Fatal(err)
  }
  PrintStderr(config, 1, "Wrote crosscorrelation plot to `%s'\n", filename)
}

/* -------------------------------------------------------------------------- */

func bamToBigWig(config Config, filenameTrack string, filenamesTreatment, filenamesControl []string, fraglenTreatment, fraglenControl []int) {

  logger := log.New(os.Stderr, "", 0)
  if config.Verbose == 0 {
    logger = log.New(io.Discard, "", 0)
  }

  options := []interface{}{
    OptionLogger                 {Value: logger},
    OptionBinningMethod          {Value: config.BinningMethod},
    OptionBinSize                {Value: config.BinSize},
    OptionNormalizeTrack         {Value: config.NormalizeTrack},
    OptionEffectiveGenomeSize    {Value: config.EffectiveGenomeSize},
    OptionShiftReads             {Value: config.ShiftReads},
    OptionPairedAsSingleEnd      {Value: config.PairedAsSingleEnd},
    OptionPairedEndStrandSpecific{Value: config.PairedEndStrandSpec},
    OptionLogScale               {Value: config.LogScale},
    OptionPseudocounts           {Value: config.Pseudocounts},
    OptionEstimateFraglen        {Value: config.EstimateFraglen},
    OptionFraglenRange           {Value: config.FraglenRange},
    OptionFraglenBinSize         {Value: config.FraglenBinSize},
    OptionFilterChroms           {Value: config.FilterChroms},
    OptionRemoveFilteredChroms   {Value: config.RemoveChroms},
    OptionFilterMapQ             {Value: config.FilterMapQ},
    OptionFilterReadLengths      {Value: config.FilterReadLengths},
    OptionFilterDuplicates       {Value: config.FilterDuplicates},
    OptionFilterStrand           {Value: config.FilterStrand},
    OptionFilterPairedEnd        {Value: config.FilterPairedEnd},
    OptionFilterSingleEnd        {Value: config.FilterSingleEnd},
    OptionSmoothenControl        {Value: config.SmoothenControl},
    OptionSmoothenSizes          {Value: config.SmoothenSizes},
    OptionSmoothenMin            {Value: config.SmoothenMin},
    OptionSkipBrokenInputs       {Value: config.SkipBrokenInputs},
    OptionThreads                {Value: config.Threads},
  }

  track, treatmentEstimates, controlEstimates, err := BamCoverage(filenamesTreatment, filenamesControl, fraglenTreatment, fraglenControl, options...)
  exitOnError(err)

  if config.EstimateFraglen {
    for i, estimate := range treatmentEstimates {
      if estimate.Error != nil || estimate.X == nil {
        continue
      }
      if config.SaveFraglen {
        saveFraglen(config, filenamesTreatment[i], estimate.Fraglen)
      }
      if config.SaveCrossCorr {
        saveCrossCorr(config, filenamesTreatment[i], estimate.X, estimate.Y)
      }
      if config.SaveCrossCorrPlot {
        saveCrossCorrPlot(config, filenamesTreatment[i], estimate.X, estimate.Y)
      }
    }
    for i, estimate := range controlEstimates {
      if estimate.Error != nil || estimate.X == nil {
        continue
      }
      if config.SaveFraglen {
        saveFraglen(config, filenamesControl[i], estimate.Fraglen)
      }
      if config.SaveCrossCorr {
        saveCrossCorr(config, filenamesControl[i], estimate.X, estimate.Y)
      }
      if config.SaveCrossCorrPlot {
        saveCrossCorrPlot(config, filenamesControl[i], estimate.X, estimate.Y)
      }
    }
  }
  PrintStderr(config, 1, "Writing track `%s'... ", filenameTrack)
  parameters := DefaultBigWigParameters()
  if len(config.BWZoomLevels) != 0 {
    parameters.ReductionLevels = config.BWZoomLevels
  }
  if err := track.ExportBigWig(filenameTrack, parameters); err != nil {
    PrintStderr(config, 1, "failed\n")
    exitOnError(err)
  } else {
    PrintStderr(config, 1, "done\n")
  }
}

/* -------------------------------------------------------------------------- */

func main() {

  config := Config{}
  config.BinSize         = 10
  config.BinningMethod   = "simple"
  config.FraglenBinSize  = 10
  config.FraglenRange    = [2]int{-1, -1}
  config.FilterStrand    = '*'
  config.Pseudocounts    = [2]float64{1.0, 1.0}
  config.LogScale        = true
  config.SmoothenMin     = 20.0
  config.Threads         = 1

  options := getopt.New()

  // bigWig options
  optBWZoomLevels      := options. StringLong("bigwig-zoom-levels",         0 , "", "comma separated list of BigWig zoom levels")
  // read options
  optShiftReads        := options. StringLong("shift-reads",                0 , "", "shift reads on the positive strand by `x' bps and those on the negative strand by `y' bps [format: x,y]")
  optPairedAsSingleEnd := options.   BoolLong("paired-as-single-end",       0 ,     "treat paired as single end reads")
  optPairedEndStrand   := options.   BoolLong("paired-end-strand-specific", 0 ,     "strand specific paired-end sequencing")
  // options for filtering reads
  optFilterStrand      := options. StringLong("filter-strand",              0 , "", "use reads on either the forward `+' or reverse `-' strand")
  optReadLength        := options. StringLong("filter-read-lengths",        0 , "", "feasible range of read-lengths [format: min:max]")
  optFilterMapQ        := options.    IntLong("filter-mapq",                0 ,  0, "filter reads for minimum mapping quality (default: 0)")
  optFilterDuplicates  := options.   BoolLong("filter-duplicates",          0 ,     "remove reads marked as duplicates")
  optFilterPairedEnd   := options.   BoolLong("filter-paired-end",          0 ,     "remove all single end reads")
  optFilterSingleEnd   := options.   BoolLong("filter-single-end",          0 ,     "remove all paired end reads")
  optFilterChroms      := options. StringLong("filter-chromosomes",         0 , "", "remove all reads on the given chromosomes [comma separated list]")
  optRemoveChroms      := options.   BoolLong("remove-filtered-chromosomes",0 ,     "remove filtered chromosomes from the resulting track")
  // track options
  optBinningMethod     := options. StringLong("binning-method",             0 , "", "binning method (i.e. simple [default], overlap, or mean overlap)")
  optBinSize           := options.    IntLong("bin-size",                   0 , 10, "track bin size [default: 10]")
  optNormalizeTrack    := options. StringLong("normalize-track",            0 , "", "normalize track with the specified method (i.e. rpm, cpm, rpkm, or rpgc)")
  optGenomeSize        := options.    IntLong("effective-genome-size",      0 ,  0, "effective genome size for rpgc normalization")
  optPseudocounts      := options. StringLong("pseudocounts",               0 , "", "pseudocounts added to treatment and control signal (default: `1,1')")
  optSmoothenControl   := options.   BoolLong("smoothen-control",           0 ,     "smoothen control with an adaptive window method")
  optSmoothenSizes     := options. StringLong("smoothen-window-sizes",      0 , "", "feasible window sizes for the smoothening method [format: s1,s2,...]")
  optSmoothenMin       := options. StringLong("smoothen-min-counts",        0 , "", "minimum number of counts for the smoothening method")
  optRawCounts         := options.   BoolLong("raw-counts",                 0 ,     "do not add pseudocounts or log-transform the data")
  // options for estimating and setting fragment lengths
  optFraglen           := options.    IntLong("fragment-length",            0 , -1, "fragment length for all input files (reads are extended to the given length)")
  optFraglenRange      := options. StringLong("fragment-length-range",      0 , "", "feasible range of fragment lengths [format from:to]")
  optEstimateFraglen   := options.   BoolLong("estimate-fragment-length",   0 ,     "use crosscorrelation to estimate the fragment length")
  optFraglenBinSize    := options.    IntLong("fragment-length-bin-size",   0 , 10, "bin size used when estimating the fragment length [default: 10]")
  optSaveFraglen       := options.   BoolLong("save-fraglen",               0 ,     "save estimated fragment length in a file named <BAM_BASENAME>.fraglen.txt")
  optSaveCrossCorr     := options.   BoolLong("save-crosscorrelation",      0 ,     "save crosscorrelation between forward and reverse strands in a file named <BAM_BASENAME>.fraglen.table")
  optSaveCrossCorrPlot := options.   BoolLong("save-crosscorrelation-plot", 0 ,     "save crosscorrelation plot in a file named <BAM_BASENAME>.fraglen.pdf")
  // generic options
  optSkipBroken        := options.   BoolLong("skip-broken-inputs",         0 ,     "continue with the remaining files if an input file cannot be read")
  optThreads           := options.    IntLong("threads",                   't',  1, "number of threads [default: 1]")
  optVerbose           := options.CounterLong("verbose",                   'v',     "verbose level [-v or -vv]")
  optHelp              := options.   BoolLong("help",                      'h',     "print help")

  options.SetParameters("<TREATMENT1.bam[:FRAGLEN],TREATMENT2.bam[:FRAGLEN],...> [<CONTROL1.bam[:FRAGLEN],CONTROL2.bam[:FRAGLEN],...>] <RESULT.bw>")
  options.Parse(os.Args)

  // parse options
  //////////////////////////////////////////////////////////////////////////////
  if *optHelp {
    options.PrintUsage(os.Stdout)
    os.Exit(0)
  }
  if *optVerbose != 0 {
    config.Verbose = *optVerbose
  }
  if len(options.Args()) != 2 && len(options.Args()) != 3 {
    options.PrintUsage(os.Stderr)
    os.Exit(2)
  }
  if *optBinSize < 1 {
    options.PrintUsage(os.Stderr)
    os.Exit(2)
  } else {
    config.BinSize = *optBinSize
  }
  if *optBinningMethod != "" {
    config.BinningMethod = *optBinningMethod
  }
  if *optPseudocounts != "" {
    tmp := strings.Split(*optPseudocounts, ",")
    if len(tmp) != 2 {
      options.PrintUsage(os.Stderr)
      os.Exit(2)
    }
    t1, err := strconv.ParseFloat(tmp[0], 64)
    if err != nil {
      log.Fatal(err)
    }
    t2, err := strconv.ParseFloat(tmp[1], 64)
    if err != nil {
      log.Fatal(err)
    }
    config.Pseudocounts[0] = t1
    config.Pseudocounts[1] = t2
  }
  if *optRawCounts {
    config.LogScale        = false
    config.Pseudocounts[0] = 0.0
    config.Pseudocounts[1] = 0.0
  }
  if *optPairedEndStrand {
    config.PairedEndStrandSpec = true
  }
  if *optPairedAsSingleEnd {
    config.PairedAsSingleEnd = true
  }
  if *optEstimateFraglen {
    config.EstimateFraglen = true
  }
  if *optFraglenBinSize > 0 {
    config.FraglenBinSize = *optFraglenBinSize
  }
  if *optReadLength != "" {
    tmp := strings.Split(*optReadLength, ":")
    if len(tmp) != 2 {
      options.PrintUsage(os.Stderr)
      os.Exit(2)
    }
    t1, err := strconv.ParseInt(tmp[0], 10, 64)
    if err != nil {
      log.Fatal(err)
    }
    t2, err := strconv.ParseInt(tmp[1], 10, 64)
    if err != nil {
      log.Fatal(err)
    }
    if t1 > t2 {
      options.PrintUsage(os.Stderr)
      os.Exit(2)
    }
    config.FilterReadLengths[0] = int(t1)
    config.FilterReadLengths[1] = int(t2)
  }
  if *optFraglenRange != "" {
    tmp := strings.Split(*optFraglenRange, ":")
    if len(tmp) != 2 {
      options.PrintUsage(os.Stderr)
      os.Exit(2)
    }
    t1, err := strconv.ParseInt(tmp[0], 10, 64)
    if err != nil {
      log.Fatal(err)
    }
    t2, err := strconv.ParseInt(tmp[1], 10, 64)
    if err != nil {
      log.Fatal(err)
    }
    config.FraglenRange[0] = int(t1)
    config.FraglenRange[1] = int(t2)
  }
  if *optFilterMapQ < 0 {
    options.PrintUsage(os.Stderr)
    os.Exit(2)
  } else {
    config.FilterMapQ = *optFilterMapQ
  }
  if *optFilterStrand != "" {
    switch *optFilterStrand {
    case "+": config.FilterStrand = '+'
    case "-": config.FilterStrand = '-'
    default:
      options.PrintUsage(os.Stderr)
      os.Exit(2)
    }
  }
  if *optFilterChroms != "" {
    config.FilterChroms = strings.Split(*optFilterChroms, ",")
  }
  if *optShiftReads != "" {
    tmp := strings.Split(*optShiftReads, ",")
    if len(tmp) != 2 {
      options.PrintUsage(os.Stderr)
      os.Exit(2)
    }
    t1, err := strconv.ParseInt(tmp[0], 10, 64)
    if err != nil {
      log.Fatal(err)
    }
    t2, err := strconv.ParseInt(tmp[1], 10, 64)
    if err != nil {
      log.Fatal(err)
    }
    config.ShiftReads[0] = int(t1)
    config.ShiftReads[1] = int(t2)
  }
  if *optSmoothenControl {
    config.SmoothenControl = true
  }
  if *optSmoothenSizes != "" {
    config.SmoothenSizes = []int{}
    tmp := strings.Split(*optSmoothenSizes, ",")
    for _, str := range tmp {
      t, err := strconv.ParseInt(str, 10, 64)
      if err != nil {
        log.Fatal(err)
      }
      config.SmoothenSizes = append(config.SmoothenSizes, int(t))
    }
  }
  if *optSmoothenMin != "" {
    t, err := strconv.ParseFloat(*optSmoothenMin, 64)
    if err != nil {
      log.Fatal(err)
    }
    config.SmoothenMin = t
  }
  if *optBWZoomLevels != "" {
    tmp := strings.Split(*optBWZoomLevels, ",")
    config.BWZoomLevels = []int{}
    for _, str := range tmp {
      t, err := strconv.ParseInt(str, 10, 64)
      if err != nil {
        log.Fatal(err)
      }
      config.BWZoomLevels = append(config.BWZoomLevels, int(t))
    }
  }
  if *optNormalizeTrack != "" {
    switch strings.ToLower(*optNormalizeTrack) {
    case "rpm", "cpm", "rpkm", "rpgc":
      config.NormalizeTrack = strings.ToLower(*optNormalizeTrack)
    default:
      options.PrintUsage(os.Stderr)
      os.Exit(2)
    }
  }
  if *optGenomeSize > 0 {
    config.EffectiveGenomeSize = *optGenomeSize
  }
  if *optSaveFraglen {
    config.SaveFraglen = true
  }
  if *optSaveCrossCorr {
    config.SaveCrossCorr = true
  }
  if *optSaveCrossCorrPlot {
    config.SaveCrossCorrPlot = true
  }
  if *optSkipBroken {
    config.SkipBrokenInputs = true
  }
  if *optThreads > 1 {
    config.Threads = *optThreads
  }
  if *optFilterPairedEnd && *optFilterSingleEnd {
    options.PrintUsage(os.Stderr)
    os.Exit(2)
  }
  config.FilterPairedEnd  = *optFilterPairedEnd
  config.FilterSingleEnd  = *optFilterSingleEnd
  config.FilterDuplicates = *optFilterDuplicates

  if *optPairedAsSingleEnd && *optEstimateFraglen {
    log.Fatal("cannot estimate fragment length for paired-end reads")
  }

  // parse arguments
  //////////////////////////////////////////////////////////////////////////////
  filenamesTreatment := strings.Split(options.Args()[0], ",")
  filenamesControl   := []string{}
  filenameTrack      := ""
  if len(options.Args()) == 3 {
    filenamesControl = strings.Split(options.Args()[1], ",")
    filenameTrack    = options.Args()[2]
  } else {
    filenameTrack    = options.Args()[1]
  }
  fraglenTreatment := make([]int, len(filenamesTreatment))
  fraglenControl   := make([]int, len(filenamesControl))

  for i, filename := range filenamesTreatment {
    filenamesTreatment[i], fraglenTreatment[i] = parseFilename(filename)
  }
  for i, filename := range filenamesControl {
    filenamesControl[i], fraglenControl[i] = parseFilename(filename)
  }
  if *optFraglen != -1 {
    for i, _ := range fraglenTreatment {
      fraglenTreatment[i] = *optFraglen
    }
    for i, _ := range fraglenControl {
      fraglenControl[i] = *optFraglen
    }
  }
  config.RemoveChroms = *optRemoveChroms

  bamToBigWig(config, filenameTrack, filenamesTreatment, filenamesControl, fraglenTreatment, fraglenControl)
}
