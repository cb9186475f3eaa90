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

import "io"
import "os"
import "strings"

import "github.com/pbenner/rustynetics/lib/seekinghttp"

/* -------------------------------------------------------------------------- */

// Open a file from the local file system or, if the filename starts with
// http:// or https://, over HTTP using byte-range requests. The result
// satisfies the seekable byte stream contract required by the bigWig
// reader.
func OpenNetFile(filename string) (io.ReadSeekCloser, error) {
  if strings.HasPrefix(filename, "http://") || strings.HasPrefix(filename, "https://") {
    return seekinghttp.New(filename), nil
  }
  return os.Open(filename)
}
