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

import   "bufio"
import   "strings"
import   "testing"

/* -------------------------------------------------------------------------- */

func TestGenome(t *testing.T) {

  genome := Genome{}

  if _, err := genome.AddSequence("chr1", 1000); err != nil {
    t.Fatal(err)
  }
  if _, err := genome.AddSequence("chr2", 500); err != nil {
    t.Fatal(err)
  }
  if _, err := genome.AddSequence("chr1", 2000); err == nil {
    t.Error("expected an error for duplicate sequence names")
  }
  if length, err := genome.SeqLength("chr2"); err != nil {
    t.Fatal(err)
  } else {
    if length != 500 {
      t.Errorf("expected sequence length 500, got %d", length)
    }
  }
  if idx, err := genome.GetIdx("chr2"); err != nil {
    t.Fatal(err)
  } else {
    if idx != 1 {
      t.Errorf("expected sequence index 1, got %d", idx)
    }
  }
  if _, err := genome.SeqLength("chr3"); err == nil {
    t.Error("expected an error for unknown sequence names")
  }
  if genome.SumLengths() != 1500 {
    t.Errorf("expected total length 1500, got %d", genome.SumLengths())
  }
}

func TestGenomeRead(t *testing.T) {

  data := "chr1\t249250621\n" +
          "chr2\t243199373\n" +
          "chr3\t198022430\n"

  genome := Genome{}
  if err := genome.Read(bufio.NewReader(strings.NewReader(data))); err != nil {
    t.Fatal(err)
  }
  if genome.Length() != 3 {
    t.Fatalf("expected 3 sequences, got %d", genome.Length())
  }
  if genome.Seqnames[1] != "chr2" || genome.Lengths[1] != 243199373 {
    t.Errorf("invalid genome entry: %s %d", genome.Seqnames[1], genome.Lengths[1])
  }
}

func TestGenomeFilter(t *testing.T) {

  genome := NewGenome([]string{"chr1", "chr2", "chrM"}, []int{1000, 500, 100})

  filtered := genome.Filter(func(name string, length int) bool {
    return name != "chrM"
  })
  if filtered.Length() != 2 {
    t.Fatalf("expected 2 sequences, got %d", filtered.Length())
  }
  if !filtered.Equals(NewGenome([]string{"chr1", "chr2"}, []int{1000, 500})) {
    t.Error("filtered genome is invalid")
  }
}
