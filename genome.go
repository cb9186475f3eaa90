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

import "bufio"
import "bytes"
import "fmt"
import "os"
import "strconv"
import "strings"

/* -------------------------------------------------------------------------- */

// Structure containing chromosome names and sizes. The position of a
// chromosome in the list determines its id, which is used as index into
// all binary file formats.
type Genome struct {
  Seqnames []string
  Lengths  []int
}

/* constructors
 * -------------------------------------------------------------------------- */

func NewGenome(seqnames []string, lengths []int) Genome {
  if len(seqnames) != len(lengths) {
    panic("NewGenome(): invalid parameters")
  }
  return Genome{seqnames, lengths}
}

/* -------------------------------------------------------------------------- */

// Number of chromosomes in the structure.
func (genome Genome) Length() int {
  return len(genome.Seqnames)
}

// Length of the given chromosome. Returns an error if the chromosome
// is not found.
func (genome Genome) SeqLength(seqname string) (int, error) {
  for i, s := range genome.Seqnames {
    if seqname == s {
      return genome.Lengths[i], nil
    }
  }
  return 0, fmt.Errorf("sequence `%s' not found in genome", seqname)
}

// Sum of the lengths of all chromosomes.
func (genome Genome) SumLengths() int {
  r := 0
  for _, l := range genome.Lengths {
    r += l
  }
  return r
}

// Index of the given chromosome. Returns an error if the chromosome
// is not found.
func (genome Genome) GetIdx(seqname string) (int, error) {
  for i, s := range genome.Seqnames {
    if seqname == s {
      return i, nil
    }
  }
  return -1, fmt.Errorf("sequence `%s' not found in genome", seqname)
}

// Append the given chromosome to the genome and return its index.
// Duplicate chromosome names are an error.
func (genome *Genome) AddSequence(seqname string, length int) (int, error) {
  for _, s := range genome.Seqnames {
    if seqname == s {
      return -1, fmt.Errorf("sequence `%s' already exists in genome", seqname)
    }
  }
  genome.Seqnames = append(genome.Seqnames, seqname)
  genome.Lengths  = append(genome.Lengths,  length)
  return len(genome.Seqnames)-1, nil
}

func (genome Genome) Clone() Genome {
  seqnames := make([]string, len(genome.Seqnames))
  lengths  := make([]int,    len(genome.Lengths))
  copy(seqnames, genome.Seqnames)
  copy(lengths,  genome.Lengths)
  return NewGenome(seqnames, lengths)
}

func (genome Genome) Equals(g Genome) bool {
  if len(genome.Seqnames) != len(g.Seqnames) {
    return false
  }
  for i := 0; i < len(genome.Seqnames); i++ {
    if genome.Seqnames[i] != g.Seqnames[i] {
      return false
    }
    if genome.Lengths[i] != g.Lengths[i] {
      return false
    }
  }
  return true
}

// Remove all chromosomes for which f returns false.
func (genome Genome) Filter(f func(name string, length int) bool) Genome {
  seqnames := []string{}
  lengths  := []int{}
  for i := 0; i < genome.Length(); i++ {
    if f(genome.Seqnames[i], genome.Lengths[i]) {
      seqnames = append(seqnames, genome.Seqnames[i])
      lengths  = append(lengths,  genome.Lengths[i])
    }
  }
  return NewGenome(seqnames, lengths)
}

/* convert to string
 * -------------------------------------------------------------------------- */

func (genome Genome) String() string {
  var buffer bytes.Buffer

  buffer.WriteString(
    fmt.Sprintf("%10s %10s\n", "seqnames", "lengths"))

  for i := 0; i < genome.Length(); i++ {
    if i != 0 {
      buffer.WriteString("\n")
    }
    buffer.WriteString(
      fmt.Sprintf("%10s %10d",
        genome.Seqnames[i],
        genome.Lengths [i]))
  }
  return buffer.String()
}

/* i/o
 * -------------------------------------------------------------------------- */

// Read chromosome sizes from a UCSC text file. The format is a whitespace
// separated table where the first column is the name of the chromosome and
// the second column the chromosome length.
func (genome *Genome) Read(reader *bufio.Reader) error {
  seqnames := []string{}
  lengths  := []int{}

  for {
    line, err := bufioReadLine(reader)
    if err != nil {
      break
    }
    fields := strings.Fields(line)
    if len(fields) == 0 {
      continue
    }
    if len(fields) < 2 {
      return fmt.Errorf("invalid genome file")
    }
    length, err := strconv.ParseInt(fields[1], 10, 64)
    if err != nil {
      return fmt.Errorf("invalid genome file: %v", err)
    }
    seqnames = append(seqnames, fields[0])
    lengths  = append(lengths,  int(length))
  }
  genome.Seqnames = seqnames
  genome.Lengths  = lengths
  return nil
}

func (genome *Genome) Import(filename string) error {
  f, err := os.Open(filename)
  if err != nil {
    return err
  }
  defer f.Close()

  if err := genome.Read(bufio.NewReader(f)); err != nil {
    return fmt.Errorf("importing genome from `%s' failed: %v", filename, err)
  }
  return nil
}
