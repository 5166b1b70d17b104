package domain

var Tables = []interface{}{
	&GhlTenant{},
	&Instance{},
}
