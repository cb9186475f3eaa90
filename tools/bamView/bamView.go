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
import   "os"

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

func bamView(filename string, printHeader, printReads bool) {

  options := BamReaderOptions{}
  options.ReadName      = true
  options.ReadCigar     = true
  options.ReadSequence  = true
  options.ReadAuxiliary = false
  options.ReadQual      = false

  bam, err := OpenBamFile(filename, options)
  exitOnError(err)
  defer bam.Close()

  if printHeader {
    fmt.Printf("%s", bam.Header.Text)
    fmt.Println(bam.Genome)
  }
  if !printReads {
    return
  }
  fmt.Printf("%10s %15s %6s %6s %10s %6s %15s\n",
    "refid", "position", "mapq", "flag", "cigar", "tlen", "read name")
  for r := range bam.ReadSingleEnd() {
    exitOnError(r.Error)
    block := r.Block
    fmt.Printf("%10d %15d %6d %6d %10s %6d %15s\n",
      block.RefID, block.Position, block.MapQ, block.Flag, block.Cigar, block.TLength, block.ReadName)
  }
}

/* -------------------------------------------------------------------------- */

func main() {

  options := getopt.New()

  optHeader := options.BoolLong("header", 0 , "print bam header and genome")
  optNoRead := options.BoolLong("no-reads", 0 , "do not print reads")
  optHelp   := options.BoolLong("help", 'h', "print help")

  options.SetParameters("<INPUT.bam>")
  options.Parse(os.Args)

  if *optHelp {
    options.PrintUsage(os.Stdout)
    os.Exit(0)
  }
  if len(options.Args()) != 1 {
    options.PrintUsage(os.Stderr)
    os.Exit(2)
  }
  bamView(options.Args()[0], *optHeader, !*optNoRead)
}
