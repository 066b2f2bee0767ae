package cmd

import (
	"reflect"
	"testing"
)

func TestParseArgs(t *testing.T) {
	tasks, options := parseArgs(nil)
	if !reflect.DeepEqual(tasks, []string{DefaultTask}) {
		t.Errorf("expected the default task without arguments, got %v", tasks)
	}
	if len(options) != 0 {
		t.Errorf("unexpected options %v", options)
	}

	tasks, options = parseArgs([]string{"update=1"})
	if !reflect.DeepEqual(tasks, []string{DefaultTask}) {
		t.Errorf("options alone should still run the default task, got %v", tasks)
	}
	if options["update"] != "1" {
		t.Errorf("unexpected options %v", options)
	}

	tasks, options = parseArgs([]string{"clean", "mode=a=b", "build"})
	if !reflect.DeepEqual(tasks, []string{"clean", "build"}) {
		t.Errorf("unexpected tasks %v", tasks)
	}
	if !reflect.DeepEqual(options, map[string]string{"mode": "a=b"}) {
		t.Errorf("unexpected options %v", options)
	}
}

func TestListFlag(t *testing.T) {
	flag := RootCmd.Flags().Lookup("list")
	if flag == nil || flag.Shorthand != "l" || flag.DefValue != "false" {
		t.Errorf("unexpected list flag %+v", flag)
	}
}
