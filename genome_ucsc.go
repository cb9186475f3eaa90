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

import "database/sql"
import "fmt"

import _ "github.com/go-sql-driver/mysql"

/* -------------------------------------------------------------------------- */

// Import chromosome names and sizes from the chromInfo table of the
// UCSC public MySQL server, e.g. ImportGenomeFromUCSC("hg19").
func ImportGenomeFromUCSC(database string) (Genome, error) {
  genome := Genome{}
  /* variables for storing a single database row */
  var i_seqname string
  var i_length  int

  /* open connection */
  db, err := sql.Open("mysql",
    fmt.Sprintf("genome@tcp(genome-mysql.cse.ucsc.edu:3306)/%s", database))
  if err != nil {
    return genome, err
  }
  defer db.Close()

  if err := db.Ping(); err != nil {
    return genome, err
  }

  /* receive data */
  rows, err := db.Query("SELECT chrom, size FROM chromInfo ORDER BY size DESC")
  if err != nil {
    return genome, err
  }
  defer rows.Close()
  for rows.Next() {
    if err := rows.Scan(&i_seqname, &i_length); err != nil {
      return genome, err
    }
    if _, err := genome.AddSequence(i_seqname, i_length); err != nil {
      return genome, err
    }
  }
  return genome, nil
}
