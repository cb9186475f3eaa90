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

func main() {

  options := getopt.New()

  optHelp := options.BoolLong("help", 'h', "print help")

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
  genome, err := BamImportGenome(options.Args()[0])
  exitOnError(err)

  fmt.Println(genome)
}
