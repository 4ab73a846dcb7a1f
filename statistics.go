package stockpile

import "math"

// Statistics is a basic set of allocation counters that can be populated from any engine
// in this module via AddStatistics.
type Statistics struct {
	// BlockCount is the number of backing blocks currently allocated
	BlockCount int
	// ObjectCount is the number of live objects constructed into those blocks
	ObjectCount int
	// BlockBytes is the total size in bytes of all backing blocks
	BlockBytes int
	// ObjectBytes is the total size in bytes of all live objects
	ObjectBytes int
}

func (s *Statistics) Clear() {
	s.BlockCount = 0
	s.ObjectCount = 0
	s.BlockBytes = 0
	s.ObjectBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.BlockCount += other.BlockCount
	s.ObjectCount += other.ObjectCount
	s.BlockBytes += other.BlockBytes
	s.ObjectBytes += other.ObjectBytes
}

// DetailedStatistics extends Statistics with free-region extents. Populating it is more
// expensive than populating Statistics, since engines must walk their chunk or slot
// bookkeeping to find free regions.
type DetailedStatistics struct {
	Statistics
	// FreeRegionCount is the number of distinct free regions (unused chunk tails, free
	// slot runs) in the engine
	FreeRegionCount int
	// ObjectSizeMin is the size of the smallest live object
	ObjectSizeMin int
	// ObjectSizeMax is the size of the largest live object
	ObjectSizeMax int
	// FreeRegionSizeMin is the size of the smallest free region
	FreeRegionSizeMin int
	// FreeRegionSizeMax is the size of the largest free region
	FreeRegionSizeMax int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.FreeRegionCount = 0
	s.ObjectSizeMin = math.MaxInt
	s.ObjectSizeMax = 0
	s.FreeRegionSizeMin = math.MaxInt
	s.FreeRegionSizeMax = 0
}

func (s *DetailedStatistics) AddFreeRegion(size int) {
	s.FreeRegionCount++

	if size < s.FreeRegionSizeMin {
		s.FreeRegionSizeMin = size
	}

	if size > s.FreeRegionSizeMax {
		s.FreeRegionSizeMax = size
	}
}

func (s *DetailedStatistics) AddObject(size int) {
	s.ObjectCount++
	s.ObjectBytes += size

	if size < s.ObjectSizeMin {
		s.ObjectSizeMin = size
	}

	if size > s.ObjectSizeMax {
		s.ObjectSizeMax = size
	}
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.FreeRegionCount += other.FreeRegionCount

	if other.ObjectSizeMin < s.ObjectSizeMin {
		s.ObjectSizeMin = other.ObjectSizeMin
	}

	if other.ObjectSizeMax > s.ObjectSizeMax {
		s.ObjectSizeMax = other.ObjectSizeMax
	}

	if other.FreeRegionSizeMin < s.FreeRegionSizeMin {
		s.FreeRegionSizeMin = other.FreeRegionSizeMin
	}

	if other.FreeRegionSizeMax > s.FreeRegionSizeMax {
		s.FreeRegionSizeMax = other.FreeRegionSizeMax
	}
}
