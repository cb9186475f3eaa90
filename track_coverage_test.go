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

import   "errors"
import   "math"
import   "os"
import   "path/filepath"
import   "testing"

/* -------------------------------------------------------------------------- */

// Four forward reads of length 50 within the first bin of chr1.
func bamCoverageTestReads() []bamTestRead {
  return []bamTestRead{
    {RefID: 0, Pos:  0, Name: "r1", Flag: 0, MapQ: 30, Cigar: []uint32{50<<4 | 0}},
    {RefID: 0, Pos:  0, Name: "r2", Flag: 0, MapQ: 30, Cigar: []uint32{50<<4 | 0}},
    {RefID: 0, Pos: 10, Name: "r3", Flag: 0, MapQ: 30, Cigar: []uint32{50<<4 | 0}},
    {RefID: 0, Pos: 20, Name: "r4", Flag: 0, MapQ: 30, Cigar: []uint32{50<<4 | 0}} }
}

// Options that switch off the default treatment/control transformation,
// so that raw bin counts can be inspected.
func bamCoverageRawOptions(options ...interface{}) []interface{} {
  return append([]interface{}{
    OptionBinSize     {100},
    OptionLogScale    {false},
    OptionPseudocounts{[2]float64{0.0, 0.0}} }, options...)
}

/* -------------------------------------------------------------------------- */

func TestBamCoverageSimple(t *testing.T) {

  genome   := NewGenome([]string{"chr1"}, []int{1000})
  filename := writeTestBam(t, genome, bamCoverageTestReads())

  track, _, _, err := BamCoverage([]string{filename}, nil, nil, nil, bamCoverageRawOptions()...)
  if err != nil {
    t.Fatal(err)
  }
  if !track.Genome.Equals(genome) {
    t.Errorf("coverage track has invalid genome: %v", track.Genome)
  }
  if v, _ := track.At("chr1", 0); v != 4.0 {
    t.Errorf("first bin has invalid value `%f'", v)
  }
  if v, _ := track.At("chr1", 100); v != 0.0 {
    t.Errorf("second bin has invalid value `%f'", v)
  }
}

func TestBamCoverageRpm(t *testing.T) {

  genome   := NewGenome([]string{"chr1"}, []int{1000})
  filename := writeTestBam(t, genome, bamCoverageTestReads())

  track, _, _, err := BamCoverage([]string{filename}, nil, nil, nil,
    bamCoverageRawOptions(OptionNormalizeTrack{"rpm"})...)
  if err != nil {
    t.Fatal(err)
  }
  // four reads, i.e. the scaling factor is 1e6/4
  if v, _ := track.At("chr1", 0); math.Abs(v - 1.0e6) > 1e-6 {
    t.Errorf("first bin has invalid value `%f'", v)
  }
}

func TestBamCoverageRpkm(t *testing.T) {

  genome   := NewGenome([]string{"chr1"}, []int{1000})
  filename := writeTestBam(t, genome, bamCoverageTestReads())

  track, _, _, err := BamCoverage([]string{filename}, nil, nil, nil,
    bamCoverageRawOptions(OptionNormalizeTrack{"rpkm"})...)
  if err != nil {
    t.Fatal(err)
  }
  // the scaling factor is 1e6/(4*100)
  if v, _ := track.At("chr1", 0); math.Abs(v - 1.0e4) > 1e-6 {
    t.Errorf("first bin has invalid value `%f'", v)
  }
}

func TestBamCoverageRpgc(t *testing.T) {

  genome   := NewGenome([]string{"chr1"}, []int{1000})
  filename := writeTestBam(t, genome, bamCoverageTestReads())

  // reads are extended to the given fragment length of 200
  track, estimates, _, err := BamCoverage([]string{filename}, nil, []int{200}, nil,
    bamCoverageRawOptions(
      OptionNormalizeTrack     {"rpgc"},
      OptionEffectiveGenomeSize{1000000})...)
  if err != nil {
    t.Fatal(err)
  }
  if len(estimates) != 1 || estimates[0].Fraglen != 200 {
    t.Fatalf("invalid fragment length estimates: %+v", estimates)
  }
  // scale = effective genome size / (reads * fragment length)
  c := 1000000.0/(4.0*200.0)
  // all four extended reads overlap the first two bins
  if v, _ := track.At("chr1", 0); math.Abs(v - 4.0*c) > 1e-6 {
    t.Errorf("first bin has invalid value `%f'", v)
  }
  if v, _ := track.At("chr1", 100); math.Abs(v - 4.0*c) > 1e-6 {
    t.Errorf("second bin has invalid value `%f'", v)
  }
  // reads r3 and r4 reach into the third bin
  if v, _ := track.At("chr1", 200); math.Abs(v - 2.0*c) > 1e-6 {
    t.Errorf("third bin has invalid value `%f'", v)
  }
}

func TestBamCoverageControl(t *testing.T) {

  genome := NewGenome([]string{"chr1"}, []int{1000})

  treatment := writeTestBam(t, genome, bamCoverageTestReads())
  control   := writeTestBam(t, genome, []bamTestRead{
    {RefID: 0, Pos: 0, Name: "c1", Flag: 0, MapQ: 30, Cigar: []uint32{80<<4 | 0}} })

  // default pseudocounts [1,1] and log2 transformation
  track, _, _, err := BamCoverage([]string{treatment}, []string{control}, nil, nil,
    OptionBinSize{100})
  if err != nil {
    t.Fatal(err)
  }
  if v, _ := track.At("chr1", 0); math.Abs(v - math.Log2(5.0/2.0)) > 1e-12 {
    t.Errorf("first bin has invalid value `%f'", v)
  }
  if v, _ := track.At("chr1", 100); math.Abs(v - 0.0) > 1e-12 {
    t.Errorf("second bin has invalid value `%f'", v)
  }
}

func TestBamCoverageSkipBrokenInputs(t *testing.T) {

  genome := NewGenome([]string{"chr1"}, []int{1000})

  valid  := writeTestBam(t, genome, bamCoverageTestReads())
  broken := filepath.Join(t.TempDir(), "broken.bam")
  if err := os.WriteFile(broken, []byte("this is not a bam file"), 0666); err != nil {
    t.Fatal(err)
  }
  // without the flag the broken file is a hard error
  _, _, _, err := BamCoverage([]string{broken, valid}, nil, nil, nil, bamCoverageRawOptions()...)
  if err == nil {
    t.Fatal("expected an error for a broken input file")
  }
  // with the flag the broken file is skipped
  track, _, _, err := BamCoverage([]string{broken, valid}, nil, nil, nil,
    bamCoverageRawOptions(OptionSkipBrokenInputs{true})...)
  if err != nil {
    t.Fatal(err)
  }
  if v, _ := track.At("chr1", 0); v != 4.0 {
    t.Errorf("first bin has invalid value `%f'", v)
  }
}

/* fragment length estimation
 * -------------------------------------------------------------------------- */

func TestBamCoverageEstimateFraglen(t *testing.T) {

  genome  := NewGenome([]string{"chr1"}, []int{20000})
  fraglen := 200

  reads := []bamTestRead{}
  for i := 0; i < 700; i++ {
    // quasi-uniform positions in [1000, 9000)
    p := 1000 + (i*7919) % 8000
    reads = append(reads, bamTestRead{
      RefID: 0, Pos: p, Name: "f", Flag: 0, MapQ: 30,
      Cigar: []uint32{50<<4 | 0}})
    reads = append(reads, bamTestRead{
      RefID: 0, Pos: p+fraglen-50, Name: "r", Flag: 16, MapQ: 30,
      Cigar: []uint32{50<<4 | 0}})
  }
  filename := writeTestBam(t, genome, reads)

  _, estimates, _, err := BamCoverage([]string{filename}, nil, nil, nil,
    bamCoverageRawOptions(OptionEstimateFraglen{true})...)
  if err != nil {
    t.Fatal(err)
  }
  if len(estimates) != 1 {
    t.Fatalf("expected one fragment length estimate, got %d", len(estimates))
  }
  if estimates[0].Fraglen < fraglen-20 || estimates[0].Fraglen > fraglen+20 {
    t.Errorf("expected fragment length estimate close to %d, got %d", fraglen, estimates[0].Fraglen)
  }
  if len(estimates[0].X) == 0 || len(estimates[0].X) != len(estimates[0].Y) {
    t.Errorf("invalid cross-correlation diagnostics")
  }
}

func TestBamCoverageEstimateFraglenFailed(t *testing.T) {

  genome := NewGenome([]string{"chr1"}, []int{20000})

  // too few reads for the cross-correlation
  reads := []bamTestRead{}
  for i := 0; i < 10; i++ {
    reads = append(reads, bamTestRead{
      RefID: 0, Pos: 1000 + 100*i, Name: "r", Flag: 0, MapQ: 30,
      Cigar: []uint32{50<<4 | 0}})
  }
  filename := writeTestBam(t, genome, reads)

  _, _, _, err := BamCoverage([]string{filename}, nil, nil, nil,
    bamCoverageRawOptions(OptionEstimateFraglen{true})...)
  if err == nil {
    t.Fatal("expected a fragment length estimation error")
  }
  e := FraglenEstimationError{}
  if !errors.As(err, &e) {
    t.Fatalf("expected a fragment length estimation error, got: %v", err)
  }
  if e.Filename != filename {
    t.Errorf("error reports the wrong file: %s", e.Filename)
  }
}
