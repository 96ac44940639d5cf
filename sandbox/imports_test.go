package sandbox

import (
	"reflect"
	"testing"
)

func TestScanImports(t *testing.T) {
	tests := []struct {
		name     string
		script   string
		expected []string
	}{
		{
			name:     "third-party imports",
			script:   "import pandas as pd\nimport numpy\nprint(pd.__version__)",
			expected: []string{"numpy", "pandas"},
		},
		{
			name:     "from imports",
			script:   "from sklearn.linear_model import LinearRegression\nfrom bs4 import BeautifulSoup",
			expected: []string{"bs4", "sklearn"},
		},
		{
			name:     "stdlib excluded",
			script:   "import os\nimport json\nimport sys\nfrom pathlib import Path",
			expected: []string{},
		},
		{
			name:     "dotted import uses root",
			script:   "import matplotlib.pyplot as plt",
			expected: []string{"matplotlib"},
		},
		{
			name:     "indented imports count",
			script:   "def f():\n    import requests\n    return requests.get",
			expected: []string{"requests"},
		},
		{
			name:     "duplicates collapsed",
			script:   "import pandas\nimport pandas as pd\nfrom pandas import DataFrame",
			expected: []string{"pandas"},
		},
		{
			name:     "no imports",
			script:   "print('hello')",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScanImports(tt.script)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ScanImports = %v, want %v", got, tt.expected)
			}
		})
	}
}
