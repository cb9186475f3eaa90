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

func bigWigInfo(filename string) {

  reader, err := OpenBigWigFile(filename)
  exitOnError(err)
  defer reader.Close()

  header := reader.Bwf.Header

  fmt.Printf("version:           %d\n", header.Version)
  fmt.Printf("zoom levels:       %d\n", header.ZoomLevels)
  fmt.Printf("chrom tree offset: %d\n", header.CtOffset)
  fmt.Printf("data offset:       %d\n", header.DataOffset)
  fmt.Printf("index offset:      %d\n", header.IndexOffset)
  fmt.Printf("summary offset:    %d\n", header.SummaryOffset)
  fmt.Printf("uncompress size:   %d\n", header.UncompressBufSize)
  fmt.Printf("data blocks:       %d\n", header.NBlocks)
  fmt.Printf("bases covered:     %d\n", header.NBasesCovered)
  fmt.Printf("min value:         %f\n", header.MinVal)
  fmt.Printf("max value:         %f\n", header.MaxVal)
  fmt.Printf("sum data:          %f\n", header.SumData)
  fmt.Printf("sum squares:       %f\n", header.SumSquares)
  for i, zoomHeader := range header.ZoomHeaders {
    fmt.Printf("zoom level %2d:     reduction level %d, data offset %d, index offset %d\n",
      i, zoomHeader.ReductionLevel, zoomHeader.DataOffset, zoomHeader.IndexOffset)
  }
  fmt.Println()
  fmt.Println(reader.Genome)
}

/* -------------------------------------------------------------------------- */

func main() {

  options := getopt.New()

  optHelp := options.BoolLong("help", 'h', "print help")

  options.SetParameters("<INPUT.bw>")
  options.Parse(os.Args)

  if *optHelp {
    options.PrintUsage(os.Stdout)
    os.Exit(0)
  }
  if len(options.Args()) != 1 {
    options.PrintUsage(os.Stderr)
    os.Exit(2)
  }
  bigWigInfo(options.Args()[0])
}
