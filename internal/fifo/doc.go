/*
 * Copyright 2025 gRPC authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package fifo implements a fixed-capacity frame FIFO that can be shared
// between one writer and one or more readers, in the same process or across
// processes that map the same memory.
//
// The writer and reader never touch each other's state directly. They
// coordinate only through two monotonic 32-bit indices: the rear index,
// published by the writer, and the optional front index, published by a
// reader that throttles the writer. Capacities need not be powers of two;
// indices skip a small unused range once per power-of-two generation so the
// ring can locate frames with a mask instead of a division.
//
// Blocking is optional. A Waiter supplies the wait/wake facility, either a
// Linux futex keyed on the index word or a polling fallback.
package fifo
