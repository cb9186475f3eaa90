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
import   "math"
import   "os"
import   "strconv"

import   "github.com/pborman/getopt"
import . "github.com/pbenner/rustynetics"

/* -------------------------------------------------------------------------- */

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

/* -------------------------------------------------------------------------- */

func bigWigQuery(filename, seqregex string, from, to, binSize int, skipBroken bool) {

  reader, err := OpenBigWigFile(filename)
  exitOnError(err)
  defer reader.Close()

  fmt.Printf("%14s %10s %10s %10s %10s %10s %14s %14s\n",
    "seqname", "from", "to", "valid", "min", "max", "sum", "sumSquares")

  for record := range reader.Query(seqregex, from, to, binSize) {
    if record.Error != nil {
      if skipBroken {
        fmt.Fprintf(os.Stderr, "skipping broken block: %v\n", record.Error)
        continue
      }
      record.Quit()
      exitOnError(record.Error)
    }
    seqname := ""
    if record.ChromId >= 0 && record.ChromId < reader.Genome.Length() {
      seqname = reader.Genome.Seqnames[record.ChromId]
    }
    mean := math.NaN()
    if record.Valid > 0 {
      mean = record.Sum/record.Valid
    }
    fmt.Printf("%14s %10d %10d %10.0f %10.4f %10.4f %14.4f %14.4f # mean=%.4f\n",
      seqname, record.From, record.To, record.Valid, record.Min, record.Max, record.Sum, record.SumSquares, mean)
  }
}

/* -------------------------------------------------------------------------- */

func main() {

  options := getopt.New()

  optBinSize    := options.IntLong ("bin-size",     0 ,  0, "bin size [default: native bin size]")
  optSkipBroken := options.BoolLong("skip-broken",  0 ,     "skip broken data blocks")
  optHelp       := options.BoolLong("help",        'h',     "print help")

  options.SetParameters("<INPUT.bw> <SEQNAME_REGEX> <FROM> <TO>")
  options.Parse(os.Args)

  if *optHelp {
    options.PrintUsage(os.Stdout)
    os.Exit(0)
  }
  if len(options.Args()) != 4 {
    options.PrintUsage(os.Stderr)
    os.Exit(2)
  }
  from, err := strconv.ParseInt(options.Args()[2], 10, 64)
  if err != nil {
    options.PrintUsage(os.Stderr)
    os.Exit(2)
  }
  to, err := strconv.ParseInt(options.Args()[3], 10, 64)
  if err != nil || to <= from {
    options.PrintUsage(os.Stderr)
    os.Exit(2)
  }
  bigWigQuery(options.Args()[0], options.Args()[1], int(from), int(to), *optBinSize, *optSkipBroken)
}
